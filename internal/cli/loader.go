package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/engine"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/solver"
	"github.com/roach88/swimport/internal/store"
)

// queue is an engine over an open queue database.
type queue struct {
	store  *store.Store
	graph  *depgraph.Graph
	engine *engine.Engine
}

func (q *queue) Close() error {
	return q.store.Close()
}

// loadGraph compiles the configured graph, or the built-in one.
func loadGraph(opts *RootOptions, f *OutputFormatter) (*depgraph.Graph, error) {
	if opts.Graph != "" {
		if _, err := os.Stat(opts.Graph); err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "graph file not found", err)
		}
	}
	g, err := depgraph.Load(opts.Graph)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGraph, "invalid dependency graph", err)
	}
	f.VerboseLog("Loaded dependency graph with %d kinds (max depth %d)", len(g.Kinds()), g.MaxDepth())
	return g, nil
}

// openQueue loads the graph, opens the database and wires the engine
// with the default solver registry. Engine logs go to the command's stderr.
func openQueue(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter) (*queue, error) {
	g, err := loadGraph(opts, f)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	f.VerboseLog("Opened database %s", opts.Database)

	registry, err := solver.NewDefaultRegistry(g, st)
	if err != nil {
		st.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeGraph, "failed to register solvers", err)
	}

	eng := engine.New(st, g, registry,
		engine.WithWorkers(opts.Workers),
		engine.WithStuckAfter(opts.StuckAfter),
		engine.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)
	return &queue{store: st, graph: g, engine: eng}, nil
}

// RequestFile is the document accepted by enqueue and validate.
//
//	owner: import-csiprova1   # default owner
//	batch: rossi-100sl        # optional default batch key
//	requests:
//	  - kind: meeting_individual_result
//	    payload: { ... }
//
// A document without a requests list is read as a single request.
// JSON documents are accepted as they are valid YAML.
type RequestFile struct {
	Owner    string         `yaml:"owner,omitempty"`
	Batch    string         `yaml:"batch,omitempty"`
	Kind     string         `yaml:"kind,omitempty"`
	Payload  map[string]any `yaml:"payload,omitempty"`
	Requests []RequestDoc   `yaml:"requests,omitempty"`
}

// RequestDoc is one request of a RequestFile.
type RequestDoc struct {
	Owner   string         `yaml:"owner,omitempty"`
	Kind    string         `yaml:"kind"`
	Batch   string         `yaml:"batch,omitempty"`
	Payload map[string]any `yaml:"payload"`
}

// errNoRequests is returned for a file naming neither a kind nor requests.
var errNoRequests = errors.New("no requests: expected a kind or a requests list")

// LoadRequests reads a request file. Owners and batch keys fall back to the
// file defaults, then to owner and batch.
func LoadRequests(path, owner, batch string) ([]engine.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRequests(bytes.NewReader(data), owner, batch)
}

// ParseRequests is LoadRequests over a reader.
func ParseRequests(r io.Reader, owner, batch string) ([]engine.Request, error) {
	var file RequestFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoRequests
		}
		return nil, fmt.Errorf("parse requests: %w", err)
	}

	docs := file.Requests
	if file.Kind != "" {
		if len(docs) > 0 {
			return nil, fmt.Errorf("parse requests: kind and requests are mutually exclusive")
		}
		docs = []RequestDoc{{Kind: file.Kind, Payload: file.Payload}}
	}
	if len(docs) == 0 {
		return nil, errNoRequests
	}

	owner = firstNonEmpty(file.Owner, owner)
	batch = firstNonEmpty(file.Batch, batch)

	reqs := make([]engine.Request, len(docs))
	for i, doc := range docs {
		payload, err := ir.ObjectFromMap(doc.Payload)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		reqs[i] = engine.Request{
			Owner:   firstNonEmpty(doc.Owner, owner),
			Kind:    doc.Kind,
			Batch:   firstNonEmpty(doc.Batch, batch),
			Payload: payload,
		}
	}
	return reqs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
