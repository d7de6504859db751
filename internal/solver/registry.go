package solver

import (
	"fmt"
	"sync"

	"github.com/roach88/swimport/internal/depgraph"
)

type registryKey struct {
	depth int
	kind  string
}

// Registry maps (depth, kind) pairs of a dependency graph to solvers.
type Registry struct {
	graph *depgraph.Graph

	mu      sync.RWMutex
	solvers map[registryKey]Solver
}

// NewRegistry returns an empty registry bound to g.
func NewRegistry(g *depgraph.Graph) *Registry {
	return &Registry{
		graph:   g,
		solvers: make(map[registryKey]Solver),
	}
}

// NewDefaultRegistry registers the natural-key EntitySolver for every kind
// of g.
func NewDefaultRegistry(g *depgraph.Graph, entities EntityStore) (*Registry, error) {
	r := NewRegistry(g)
	es := NewEntitySolver(g, entities)
	for _, spec := range g.Kinds() {
		if err := r.Register(spec.Depth, spec.Name, es); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register binds s to (depth, kind). The pair must exist in the graph and
// may only be registered once.
func (r *Registry) Register(depth int, kind string, s Solver) error {
	if s == nil {
		return fmt.Errorf("register %s@%d: nil solver", kind, depth)
	}
	graphDepth, ok := r.graph.Depth(kind)
	if !ok {
		return fmt.Errorf("register %s@%d: unknown kind", kind, depth)
	}
	if graphDepth != depth {
		return fmt.Errorf("register %s@%d: kind sits at depth %d", kind, depth, graphDepth)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{depth: depth, kind: kind}
	if _, dup := r.solvers[key]; dup {
		return fmt.Errorf("register %s@%d: solver already registered", kind, depth)
	}
	r.solvers[key] = s
	return nil
}

// Replace binds s to (depth, kind), overwriting any earlier registration.
// Tests use it to swap a single kind's solver in a default registry.
func (r *Registry) Replace(depth int, kind string, s Solver) error {
	r.mu.Lock()
	delete(r.solvers, registryKey{depth: depth, kind: kind})
	r.mu.Unlock()
	return r.Register(depth, kind, s)
}

// Lookup returns the solver for (depth, kind).
func (r *Registry) Lookup(depth int, kind string) (Solver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.solvers[registryKey{depth: depth, kind: kind}]
	return s, ok
}

// Graph returns the dependency graph the registry is bound to.
func (r *Registry) Graph() *depgraph.Graph {
	return r.graph
}
