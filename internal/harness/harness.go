package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/engine"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/solver"
	"github.com/roach88/swimport/internal/store"
	"github.com/roach88/swimport/internal/testutil"
)

// DefaultOwner is the owner of scenario requests that name none.
const DefaultOwner = "scenario"

// Harness is the test execution engine for one scenario run.
type Harness struct {
	store  *store.Store
	graph  *depgraph.Graph
	engine *engine.Engine
	clock  *testutil.ManualClock
	passes int
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh database in a temporary directory
// 2. Load the dependency graph and the default solver registry
// 3. Insert seed entities
// 4. Execute the steps, tracing each one
// 5. Evaluate the assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-provided context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "swimport-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.countEntities(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Engine: h.engine}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	graph, err := loadGraph(scenario.Graph)
	if err != nil {
		return nil, err
	}
	registry, err := solver.NewDefaultRegistry(graph, st)
	if err != nil {
		return nil, fmt.Errorf("failed to build solver registry: %w", err)
	}

	workers := scenario.Workers
	if workers == 0 {
		workers = 1
	}
	stuckAfter := engine.DefaultStuckAfter
	if scenario.StuckAfter != "" {
		if stuckAfter, err = parseDuration(scenario.StuckAfter); err != nil {
			return nil, err
		}
	}

	clock := testutil.NewManualClock(time.Time{})
	eng := engine.New(st, graph, registry,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("mt")),
		engine.WithWorkers(workers),
		engine.WithStuckAfter(stuckAfter),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)

	return &Harness{store: st, graph: graph, engine: eng, clock: clock}, nil
}

func loadGraph(path string) (*depgraph.Graph, error) {
	if path == "" {
		return depgraph.Default()
	}
	return depgraph.Load(path)
}

// seed inserts entities directly, so a scenario can start from a store
// holding duplicates no solver would create.
func (h *Harness) seed(ctx context.Context, seeds []SeedEntity) error {
	entities := solver.NewEntitySolver(h.graph, h.store)
	for i, s := range seeds {
		spec, ok := h.graph.Kind(s.Kind)
		if !ok {
			return fmt.Errorf("seed[%d]: unknown kind %q", i, s.Kind)
		}
		fields, err := ir.ObjectFromMap(s.Fields)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		e, err := entities.Entity(spec, fields, nil)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}

		count := max(s.Count, 1)
		for range count {
			if _, err := h.store.InsertEntity(ctx, e); err != nil {
				return fmt.Errorf("seed[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	switch {
	case len(step.Enqueue) > 0:
		return h.enqueue(ctx, step, result)
	case step.Passes > 0:
		for range step.Passes {
			if err := h.pass(ctx, result); err != nil {
				return err
			}
		}
		return nil
	case step.UntilIdle:
		return h.untilIdle(ctx, result)
	case step.Advance != "":
		d, err := parseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.addEvent(TraceEvent{Type: EventAdvance, By: d.String()})
		return nil
	case step.Digest:
		return h.digest(ctx, result)
	default:
		return fmt.Errorf("step has no action")
	}
}

func (h *Harness) enqueue(ctx context.Context, step Step, result *Result) error {
	reqs := make([]engine.Request, len(step.Enqueue))
	for i, r := range step.Enqueue {
		payload, err := ir.ObjectFromMap(r.Payload)
		if err != nil {
			return fmt.Errorf("enqueue[%d]: %w", i, err)
		}
		owner := r.Owner
		if owner == "" {
			owner = DefaultOwner
		}
		reqs[i] = engine.Request{Owner: owner, Kind: r.Kind, Batch: r.Batch, Payload: payload}
	}

	var ids []string
	if step.Batch {
		var err error
		if ids, err = h.engine.EnqueueBatch(ctx, reqs); err != nil {
			return err
		}
	} else {
		for i, req := range reqs {
			id, err := h.engine.Enqueue(ctx, req)
			if err != nil {
				return fmt.Errorf("enqueue[%d]: %w", i, err)
			}
			ids = append(ids, id)
		}
	}

	for i, r := range step.Enqueue {
		if r.As != "" {
			result.Aliases[r.As] = ids[i]
		}
	}
	result.addEvent(TraceEvent{Type: EventEnqueue, Records: ids})
	return nil
}

func (h *Harness) pass(ctx context.Context, result *Result) error {
	report, err := h.engine.RunPass(ctx)
	if err != nil {
		return err
	}
	h.passes++
	return h.tracePasses(ctx, EventPass, report, result)
}

func (h *Harness) untilIdle(ctx context.Context, result *Result) error {
	n, total, err := h.engine.RunUntilIdle(ctx, 0)
	if err != nil {
		return err
	}
	h.passes += n
	return h.tracePasses(ctx, EventUntilIdle, total, result)
}

func (h *Harness) tracePasses(ctx context.Context, typ string, report ir.PassReport, result *Result) error {
	all, err := h.store.ReadAll(ctx)
	if err != nil {
		return err
	}
	states := make([]RecordState, len(all))
	for i, mt := range all {
		states[i] = stateOf(mt)
	}
	result.addEvent(TraceEvent{Type: typ, Pass: h.passes, Report: &report, States: states})
	return nil
}

func (h *Harness) digest(ctx context.Context, result *Result) error {
	report, err := h.engine.Digest(ctx)
	if err != nil {
		return err
	}
	stuck := make([]string, len(report.Stuck))
	for i, s := range report.Stuck {
		stuck[i] = s.ID
	}
	result.addEvent(TraceEvent{
		Type:    EventDigest,
		Records: report.Missing,
		Removed: report.Removed,
		Stuck:   stuck,
	})
	return nil
}

func (h *Harness) countEntities(ctx context.Context, result *Result) error {
	for _, spec := range h.graph.Kinds() {
		n, err := h.store.CountEntities(ctx, spec.Name)
		if err != nil {
			return err
		}
		if n > 0 {
			result.Entities[spec.Name] = n
		}
	}
	return nil
}
