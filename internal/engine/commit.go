package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/solver"
)

// errLostRace marks a commit whose MarkDone found the record already
// changed by a concurrent pass. Nothing is recorded on the record.
var errLostRace = errors.New("record changed concurrently")

// Commit persists a fully solved record's target entity and flips the
// record to done.
//
// Preconditions: the record is not done, solvable equals requested, and
// every prerequisite ID of the target is in the solved payload. A failed
// precondition returns COMMIT_PRECONDITION and touches nothing.
//
// The target is written through the ModeCommit solver, which finds the
// entity by natural key before creating it, so committing the same record
// twice (a retry after a crash, or two racing passes) never duplicates the
// entity. Any other failure is recorded on the record, which stays
// pending with its depths untouched and is retried by the next pass.
func (e *Engine) Commit(ctx context.Context, mt ir.Microtransaction) error {
	if err := e.checkCommit(mt); err != nil {
		return err
	}

	res, err := e.solve(ctx, mt, mt.Kind, mt.Progress.Requested, solver.ModeCommit)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var re *RuntimeError
		if errors.As(err, &re) && re.Code == ErrCodeSolverFailed {
			return e.commitFailed(ctx, mt, ir.OutcomeConflict,
				NewCommitConflictError(mt.ID, mt.Kind, re.Message, err))
		}
		return e.commitFailed(ctx, mt, ir.OutcomeFailed, err)
	}
	if !res.OK() {
		return e.commitFailed(ctx, mt, res.Outcome,
			NewCommitConflictError(mt.ID, mt.Kind, res.Reason, nil))
	}
	if _, ok := res.IDs.GetInt(ir.RefField(mt.Kind)); !ok {
		return e.commitFailed(ctx, mt, ir.OutcomeFailed,
			NewSolverError(mt.ID, mt.Kind, fmt.Errorf("commit returned no %s", ir.RefField(mt.Kind))))
	}

	solved := mt.SolvedPayload.Merge(res.IDs)
	ok, err := e.store.MarkDone(ctx, mt.ID, solved, e.clock.Now())
	if err != nil {
		return e.commitFailed(ctx, mt, ir.OutcomeConflict,
			NewCommitConflictError(mt.ID, mt.Kind, "mark done failed", err))
	}
	if !ok {
		e.log.Debug("commit lost to a concurrent pass", "record", mt.ID, "kind", mt.Kind)
		return NewCommitConflictError(mt.ID, mt.Kind, errLostRace.Error(), errLostRace)
	}

	id, _ := solved.GetInt(ir.RefField(mt.Kind))
	e.log.Info("microtransaction committed",
		"record", mt.ID,
		"kind", mt.Kind,
		"entity", id,
	)
	return nil
}

func (e *Engine) checkCommit(mt ir.Microtransaction) error {
	if mt.Done {
		return NewCommitPreconditionError(mt.ID, mt.Kind, "record is already done")
	}
	if !mt.FullySolved() {
		return NewCommitPreconditionError(mt.ID, mt.Kind,
			fmt.Sprintf("solvable depth %d below requested depth %d", mt.Progress.Solvable, mt.Progress.Requested))
	}
	if _, ok := e.graph.Depth(mt.Kind); !ok {
		return NewUnknownKindError(mt.ID, mt.Kind)
	}
	for _, req := range e.graph.Requires(mt.Kind) {
		if _, ok := mt.SolvedPayload.GetInt(ir.RefField(req)); !ok {
			return NewCommitPreconditionError(mt.ID, mt.Kind,
				fmt.Sprintf("prerequisite %s not resolved", ir.RefField(req)))
		}
	}
	return nil
}

// commitFailed records cause on the record and returns it. The record's
// depths are left alone so the next pass retries the commit.
func (e *Engine) commitFailed(ctx context.Context, mt ir.Microtransaction, outcome ir.Outcome, cause error) error {
	e.log.Warn("commit failed",
		"record", mt.ID,
		"kind", mt.Kind,
		"outcome", outcome,
		"error", cause,
	)
	if _, err := e.store.RecordCommitFailure(ctx, mt.ID, outcome, cause.Error(), e.clock.Now()); err != nil {
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}
