package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/solver"
)

// RunPass runs one sweep over every pending record.
//
// Records are processed in ascending requested depth, in enqueue order
// within a depth. Each record gets exactly one depth attempt per pass:
//
//   - success advances processed and solvable to that depth
//   - failure advances processed only, and the depth is retried next pass
//   - reaching the requested depth commits the record in the same pass
//
// Records of one depth group are resolved by up to Workers goroutines; the
// next group starts only when the previous one is finished.
//
// Per-record failures (unsolved, ambiguous, solver errors and panics,
// commit conflicts) are written to the record and counted in the report;
// they never abort the pass. Only a store failure or context
// cancellation returns an error. A cancelled pass stops at a record
// boundary and leaves unvisited records untouched.
func (e *Engine) RunPass(ctx context.Context) (ir.PassReport, error) {
	pending, err := e.store.ReadPending(ctx, 0)
	if err != nil {
		return ir.PassReport{}, fmt.Errorf("run pass: %w", err)
	}

	report := ir.PassReport{Selected: len(pending)}
	for _, group := range groupByDepth(pending) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, err := e.runGroup(ctx, group)
		report = report.Add(r)
		if err != nil {
			return report, err
		}
	}

	e.log.Info("pass finished",
		"selected", report.Selected,
		"advanced", report.Advanced,
		"stalled", report.Stalled,
		"committed", report.Committed,
		"commit_failures", report.CommitFailures,
		"conflicts", report.Conflicts,
	)
	return report, nil
}

// RunUntilIdle repeats passes until one makes no progress, the queue is
// empty, or maxPasses is reached (maxPasses <= 0 means the graph's maximum
// depth plus one, which is enough for any record whose prerequisites are
// all available).
//
// Returns the number of passes run and the accumulated report.
func (e *Engine) RunUntilIdle(ctx context.Context, maxPasses int) (int, ir.PassReport, error) {
	if maxPasses <= 0 {
		maxPasses = e.graph.MaxDepth() + 1
	}

	var total ir.PassReport
	for n := 1; n <= maxPasses; n++ {
		r, err := e.RunPass(ctx)
		total = total.Add(r)
		if err != nil {
			return n, total, err
		}
		if r.Selected == 0 || !r.Progressed() {
			return n, total, nil
		}
	}
	return maxPasses, total, nil
}

func groupByDepth(mts []ir.Microtransaction) [][]ir.Microtransaction {
	var groups [][]ir.Microtransaction
	for i, mt := range mts {
		if i == 0 || mt.Progress.Requested != mts[i-1].Progress.Requested {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], mt)
	}
	return groups
}

// stepResult is what one record contributed to a pass.
type stepResult int

const (
	stepSkipped stepResult = iota
	stepAdvanced
	stepStalled
	stepConflict
)

func (e *Engine) runGroup(ctx context.Context, group []ir.Microtransaction) (ir.PassReport, error) {
	var (
		mu     sync.Mutex
		report ir.PassReport
	)

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, mt := range group {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := e.step(ctx, mt)
			mu.Lock()
			report = report.Add(r)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// step gives one record its depth attempt for this pass and commits it
// when the attempt completes the requested depth.
func (e *Engine) step(ctx context.Context, mt ir.Microtransaction) (ir.PassReport, error) {
	var report ir.PassReport
	if ctx.Err() != nil {
		return report, nil
	}

	if !mt.FullySolved() {
		depth := mt.NextDepth()
		res, solved, err := e.advance(ctx, mt, depth)
		if err != nil {
			return report, err
		}
		switch res {
		case stepSkipped:
			return report, nil
		case stepConflict:
			report.Conflicts++
			return report, nil
		case stepStalled:
			report.Stalled++
			return report, nil
		}
		report.Advanced++
		mt.Progress.Processed = max(mt.Progress.Processed, depth)
		mt.Progress.Solvable = depth
		mt.SolvedPayload = solved
		if !mt.FullySolved() {
			return report, nil
		}
	}

	switch err := e.Commit(ctx, mt); {
	case err == nil:
		report.Committed++
	case errors.Is(err, errLostRace):
		report.Conflicts++
	case ctx.Err() != nil:
	default:
		report.CommitFailures++
	}
	return report, nil
}

// advance attempts depth on the record and writes the outcome.
// On success it returns the merged solved payload. Only a failed store
// write is returned as an error.
func (e *Engine) advance(ctx context.Context, mt ir.Microtransaction, depth int) (stepResult, ir.Object, error) {
	ids, outcome, reason := e.attemptDepth(ctx, mt, depth)
	if ctx.Err() != nil {
		return stepSkipped, nil, nil
	}

	from := mt.Progress
	to := ir.Progress{
		Requested: from.Requested,
		Processed: max(from.Processed, depth),
		Solvable:  from.Solvable,
	}
	solved := mt.SolvedPayload
	if outcome == ir.OutcomeSolved {
		to.Solvable = depth
		solved = mt.SolvedPayload.Merge(ids)
	}

	ok, err := e.store.AdvanceDepth(ctx, mt.ID, from, to, solved, outcome, reason, e.clock.Now())
	if err != nil {
		return stepSkipped, nil, err
	}
	if !ok {
		e.log.Debug("record changed by another pass, skipping", "record", mt.ID, "depth", depth)
		return stepConflict, nil, nil
	}

	if outcome != ir.OutcomeSolved {
		e.log.Info("depth unsolved",
			"record", mt.ID,
			"kind", mt.Kind,
			"depth", depth,
			"outcome", outcome,
			"reason", reason,
		)
		return stepStalled, nil, nil
	}
	e.log.Debug("depth solved", "record", mt.ID, "kind", mt.Kind, "depth", depth)
	return stepAdvanced, solved, nil
}

// attemptDepth runs the solver of every closure kind at depth. IDs are only
// returned when all of them succeed. A depth with no closure kinds is
// trivially solved.
func (e *Engine) attemptDepth(ctx context.Context, mt ir.Microtransaction, depth int) (ir.Object, ir.Outcome, string) {
	if _, ok := e.graph.Depth(mt.Kind); !ok {
		return nil, ir.OutcomeFailed, NewUnknownKindError(mt.ID, mt.Kind).Error()
	}

	ids := ir.Object{}
	for _, kind := range e.graph.KindsAt(mt.Kind, depth) {
		mode := solver.ModeResolve
		if kind == mt.Kind {
			mode = solver.ModeTarget
		}
		res, err := e.solve(ctx, mt, kind, depth, mode)
		if err != nil {
			return nil, ir.OutcomeFailed, err.Error()
		}
		if !res.OK() {
			return nil, res.Outcome, res.Reason
		}
		for k, v := range res.IDs {
			ids[k] = v
		}
	}
	return ids, ir.OutcomeSolved, ""
}

// solve calls the registered solver for (depth, kind). Errors and panics
// come back as SOLVER_FAILED runtime errors.
func (e *Engine) solve(ctx context.Context, mt ir.Microtransaction, kind string, depth int, mode solver.Mode) (res solver.Result, err error) {
	s, ok := e.solvers.Lookup(depth, kind)
	if !ok {
		return solver.Result{}, NewMissingSolverError(mt.ID, kind, depth)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("solver panicked", "record", mt.ID, "kind", kind, "depth", depth, "panic", r)
			err = NewSolverError(mt.ID, kind, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err = s.Solve(ctx, solver.Input{
		RecordID: mt.ID,
		Owner:    mt.Owner,
		Target:   mt.Kind,
		Kind:     kind,
		Depth:    depth,
		Mode:     mode,
		Request:  mt.RequestPayload.Clone(),
		Solved:   mt.SolvedPayload.Clone(),
	})
	if err != nil {
		return solver.Result{}, NewSolverError(mt.ID, kind, err)
	}
	return res, nil
}
