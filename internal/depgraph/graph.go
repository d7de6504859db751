package depgraph

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"ocm.software/open-component-model/bindings/go/dag"

	"github.com/roach88/swimport/internal/compiler"
	"github.com/roach88/swimport/internal/ir"
)

//go:embed kinds.cue
var defaultGraphSource []byte

// ErrUnknownKind is returned for kinds the graph does not declare.
var ErrUnknownKind = errors.New("unknown entity kind")

// Graph is the static, queryable entity dependency graph.
// A Graph is immutable after construction and safe for concurrent use.
type Graph struct {
	kinds     map[string]ir.KindSpec
	order     []string            // depth ASC, name ASC
	ancestors map[string][]string // transitive prerequisites, depth ASC, name ASC
	maxDepth  int
}

// GraphError reports an inconsistent kind declaration.
type GraphError struct {
	Kind    string
	Message string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("kind %q: %s", e.Kind, e.Message)
}

// Default returns the built-in swimming-competition graph.
func Default() (*Graph, error) {
	specs, err := compiler.CompileSource(defaultGraphSource, "kinds.cue")
	if err != nil {
		return nil, fmt.Errorf("compile default graph: %w", err)
	}
	return New(specs)
}

// MustDefault is like Default but panics on error.
// The embedded graph is covered by tests, so this only fails on a broken build.
func MustDefault() *Graph {
	g, err := Default()
	if err != nil {
		panic(err)
	}
	return g
}

// Load compiles the graph declared in a CUE file.
// An empty path selects the built-in graph.
func Load(path string) (*Graph, error) {
	if path == "" {
		return Default()
	}
	specs, err := compiler.CompileFile(path)
	if err != nil {
		return nil, err
	}
	return New(specs)
}

// New validates kind specs and builds the graph.
//
// Validation order: duplicate and unknown names, then acyclicity (so a cycle
// is reported with its path), then depth ranks and natural keys.
// Kinds declared without a depth get 1 + max(prerequisite depth).
func New(specs []ir.KindSpec) (*Graph, error) {
	if len(specs) == 0 {
		return nil, errors.New("dependency graph declares no kinds")
	}

	d := dag.NewDirectedAcyclicGraph[string]()
	kinds := make(map[string]ir.KindSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, &GraphError{Kind: spec.Name, Message: "name is required"}
		}
		if _, dup := kinds[spec.Name]; dup {
			return nil, &GraphError{Kind: spec.Name, Message: "declared more than once"}
		}
		if err := d.AddVertex(spec.Name, map[string]any{"declared_depth": spec.Depth}); err != nil {
			return nil, &GraphError{Kind: spec.Name, Message: err.Error()}
		}
		kinds[spec.Name] = cloneSpec(spec)
	}

	// Edges point from a kind to each of its prerequisites.
	for _, spec := range specs {
		for _, req := range spec.Requires {
			if _, ok := kinds[req]; !ok {
				return nil, &GraphError{Kind: spec.Name, Message: fmt.Sprintf("requires unknown kind %q", req)}
			}
			if err := d.AddEdge(spec.Name, req); err != nil {
				var cycleErr *dag.CycleError
				if errors.As(err, &cycleErr) {
					return nil, &GraphError{Kind: spec.Name, Message: fmt.Sprintf("dependency cycle: %s", strings.Join(cycleErr.Cycle, " -> "))}
				}
				if errors.Is(err, dag.ErrSelfReference) {
					return nil, &GraphError{Kind: spec.Name, Message: "requires itself"}
				}
				return nil, &GraphError{Kind: spec.Name, Message: fmt.Sprintf("requires %q: %v", req, err)}
			}
		}
	}

	g := &Graph{
		kinds:     kinds,
		ancestors: make(map[string][]string, len(kinds)),
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := g.resolveDepth(name, resolved, nil); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		if err := g.checkKey(kinds[name]); err != nil {
			return nil, err
		}
	}

	g.order = g.sortByDepth(names)
	for _, name := range names {
		g.ancestors[name] = g.sortByDepth(g.collectAncestors(name, map[string]bool{}))
		if depth := g.kinds[name].Depth; depth > g.maxDepth {
			g.maxDepth = depth
		}
	}
	return g, nil
}

// resolveDepth derives or checks the depth of a kind. path holds the kinds
// being resolved above this one; meeting one of them again is a cycle.
func (g *Graph) resolveDepth(name string, resolved map[string]bool, path []string) (int, error) {
	if resolved[name] {
		return g.kinds[name].Depth, nil
	}
	if i := slices.Index(path, name); i >= 0 {
		cycle := append(slices.Clone(path[i:]), name)
		return 0, &GraphError{Kind: name, Message: "dependency cycle: " + strings.Join(cycle, " -> ")}
	}
	path = append(path, name)

	spec := g.kinds[name]
	derived := 1
	for _, req := range spec.Requires {
		reqDepth, err := g.resolveDepth(req, resolved, path)
		if err != nil {
			return 0, err
		}
		if reqDepth+1 > derived {
			derived = reqDepth + 1
		}
	}

	switch {
	case spec.Depth == 0:
		spec.Depth = derived
		g.kinds[name] = spec
	case spec.Depth < derived:
		return 0, &GraphError{
			Kind:    name,
			Message: fmt.Sprintf("depth %d must be greater than the depth of every prerequisite (need >= %d)", spec.Depth, derived),
		}
	}
	resolved[name] = true
	return spec.Depth, nil
}

func (g *Graph) checkKey(spec ir.KindSpec) error {
	for _, field := range spec.Key {
		if _, ok := RefKind(spec, field); ok {
			continue
		}
		if _, ok := spec.Fields[field]; !ok {
			return &GraphError{
				Kind:    spec.Name,
				Message: fmt.Sprintf("key field %q is neither a declared field nor a prerequisite reference", field),
			}
		}
	}
	for field, typ := range spec.Fields {
		if !ir.ValidFieldTypes[typ] {
			return &GraphError{Kind: spec.Name, Message: fmt.Sprintf("field %q has unsupported type %q", field, typ)}
		}
	}
	return nil
}

func (g *Graph) collectAncestors(name string, seen map[string]bool) []string {
	var out []string
	for _, req := range g.kinds[name].Requires {
		if seen[req] {
			continue
		}
		seen[req] = true
		out = append(out, req)
		out = append(out, g.collectAncestors(req, seen)...)
	}
	return out
}

func (g *Graph) sortByDepth(names []string) []string {
	out := slices.Clone(names)
	sort.Slice(out, func(i, j int) bool {
		di, dj := g.kinds[out[i]].Depth, g.kinds[out[j]].Depth
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out
}

// Kind returns the spec of a kind.
func (g *Graph) Kind(name string) (ir.KindSpec, bool) {
	spec, ok := g.kinds[name]
	if !ok {
		return ir.KindSpec{}, false
	}
	return cloneSpec(spec), true
}

// Depth returns the depth level of a kind.
func (g *Graph) Depth(name string) (int, bool) {
	spec, ok := g.kinds[name]
	return spec.Depth, ok
}

// Requires returns the direct prerequisites of a kind.
func (g *Graph) Requires(name string) []string {
	return slices.Clone(g.kinds[name].Requires)
}

// Ancestors returns every transitive prerequisite of a kind,
// ordered by depth then name.
func (g *Graph) Ancestors(name string) []string {
	return slices.Clone(g.ancestors[name])
}

// Closure returns the ancestors of a kind followed by the kind itself.
// These are the sections a request for that kind must carry.
func (g *Graph) Closure(name string) []string {
	if _, ok := g.kinds[name]; !ok {
		return nil
	}
	return append(g.Ancestors(name), name)
}

// KindsAt returns the kinds a record targeting target must resolve at depth:
// the members of its closure whose depth equals depth, sorted by name.
func (g *Graph) KindsAt(target string, depth int) []string {
	var out []string
	for _, name := range g.Closure(target) {
		if g.kinds[name].Depth == depth {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MaxDepth returns the deepest level in the graph.
func (g *Graph) MaxDepth() int {
	return g.maxDepth
}

// Kinds returns every kind ordered by depth then name.
func (g *Graph) Kinds() []ir.KindSpec {
	out := make([]ir.KindSpec, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, cloneSpec(g.kinds[name]))
	}
	return out
}

// RefKind reports whether a key field of spec refers to a prerequisite's
// resolved ID, and which prerequisite.
func RefKind(spec ir.KindSpec, field string) (string, bool) {
	for _, req := range spec.Requires {
		if ir.RefField(req) == field {
			return req, true
		}
	}
	return "", false
}

func cloneSpec(spec ir.KindSpec) ir.KindSpec {
	out := spec
	out.Requires = slices.Clone(spec.Requires)
	out.Key = slices.Clone(spec.Key)
	out.Fields = make(map[string]string, len(spec.Fields))
	for k, v := range spec.Fields {
		out.Fields[k] = v
	}
	return out
}
