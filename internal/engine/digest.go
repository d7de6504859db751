package engine

import (
	"context"
	"fmt"

	"github.com/roach88/swimport/internal/ir"
)

// Digest removes done records whose committed entity exists and reports
// stuck records.
//
// A done record whose entity cannot be found (deleted by hand, or a solved
// payload without the target ID) is kept and listed under Missing. Stuck
// records are only reported, never deleted.
func (e *Engine) Digest(ctx context.Context) (ir.DigestReport, error) {
	done, err := e.store.ReadDone(ctx)
	if err != nil {
		return ir.DigestReport{}, fmt.Errorf("digest: %w", err)
	}

	var report ir.DigestReport
	for _, mt := range done {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		exists := false
		if id, ok := mt.TargetID(); ok {
			exists, err = e.store.EntityExists(ctx, mt.Kind, id)
			if err != nil {
				return report, fmt.Errorf("digest %s: %w", mt.ID, err)
			}
		}
		if !exists {
			e.log.Warn("done record has no entity, keeping it", "record", mt.ID, "kind", mt.Kind)
			report.Missing = append(report.Missing, mt.ID)
			continue
		}

		deleted, err := e.store.DeleteDone(ctx, mt.ID)
		if err != nil {
			return report, fmt.Errorf("digest %s: %w", mt.ID, err)
		}
		if deleted {
			report.Removed++
		}
	}

	report.Stuck, err = e.Stuck(ctx)
	if err != nil {
		return report, err
	}

	e.log.Info("digest finished",
		"removed", report.Removed,
		"missing", len(report.Missing),
		"stuck", len(report.Stuck),
	)
	return report, nil
}

// Stuck lists pending records that have not progressed for at least the
// stuck threshold: those blocked at a depth, and fully solved records whose
// commit keeps failing.
func (e *Engine) Stuck(ctx context.Context) ([]ir.StuckRecord, error) {
	now := e.clock.Now()
	stalled, err := e.store.ReadStalled(ctx, now.Add(-e.stuckAfter))
	if err != nil {
		return nil, fmt.Errorf("stuck: %w", err)
	}

	stuck := make([]ir.StuckRecord, 0, len(stalled))
	for _, mt := range stalled {
		stuck = append(stuck, ir.StuckRecord{
			ID:           mt.ID,
			Kind:         mt.Kind,
			Progress:     mt.Progress,
			Attempts:     mt.Attempts,
			LastOutcome:  mt.LastOutcome,
			LastError:    mt.LastError,
			StalledFor:   now.Sub(mt.ProgressedAt),
			ProgressedAt: mt.ProgressedAt,
		})
	}
	return stuck, nil
}
