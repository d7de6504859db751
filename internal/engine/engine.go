package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/solver"
	"github.com/roach88/swimport/internal/store"
)

// DefaultWorkers is the default number of records resolved in parallel
// inside one requested-depth group.
const DefaultWorkers = 4

// DefaultStuckAfter is the default time a record may sit at a failed depth
// before Digest reports it as stuck.
const DefaultStuckAfter = 24 * time.Hour

// Engine owns the microtransaction lifecycle: enqueue, depth passes,
// commit and digest.
//
// An Engine holds no per-record state between calls. Every pass re-reads
// the queue and every write is a conditional update, so any number of
// engines (in one process or several) may run passes over the same
// database. A lost race shows up as a conflict in the pass report.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	store   *store.Store
	graph   *depgraph.Graph
	solvers *solver.Registry

	clock      Clock
	ids        IDGenerator
	workers    int
	stuckAfter time.Duration
	log        *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the wall clock used for record timestamps.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the generator for record IDs and batch keys.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithWorkers sets how many records of one depth group are resolved in
// parallel. Values below 1 are treated as 1.
//
// Use WithWorkers(1) for a strictly sequential pass in enqueue order.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithStuckAfter sets the stuck-record threshold.
func WithStuckAfter(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.stuckAfter = d
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine over a store, a dependency graph and a solver
// registry bound to that graph.
func New(s *store.Store, g *depgraph.Graph, solvers *solver.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      s,
		graph:      g,
		solvers:    solvers,
		clock:      SystemClock{},
		ids:        UUIDv7Generator{},
		workers:    DefaultWorkers,
		stuckAfter: DefaultStuckAfter,
		log:        slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Graph returns the engine's dependency graph.
func (e *Engine) Graph() *depgraph.Graph {
	return e.graph
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Workers returns the configured parallelism per depth group.
func (e *Engine) Workers() int {
	return e.workers
}

// StuckAfter returns the configured stuck-record threshold.
func (e *Engine) StuckAfter() time.Duration {
	return e.stuckAfter
}
