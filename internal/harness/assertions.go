package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/swimport/internal/engine"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s assertion failed:\n  expected: %s\n  actual:   %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext gives assertions access to the final state of a run.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine *engine.Engine
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions hold.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertRecord:
				err = assertRecord(actx, result.Aliases, assertion)
			case AssertEntityCount:
				err = assertEntityCount(actx, assertion)
			case AssertSameRef:
				err = assertSameRef(actx, result.Aliases, assertion)
			case AssertStuck:
				err = assertStuck(actx, result.Aliases, assertion)
			case AssertRemoved:
				err = assertRemoved(actx, result.Aliases, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func resolveAlias(aliases map[string]string, alias string) (string, error) {
	id, ok := aliases[alias]
	if !ok {
		return "", fmt.Errorf("record alias %q was never enqueued", alias)
	}
	return id, nil
}

func readAlias(actx *AssertionContext, aliases map[string]string, alias string) (ir.Microtransaction, error) {
	id, err := resolveAlias(aliases, alias)
	if err != nil {
		return ir.Microtransaction{}, err
	}
	mt, err := actx.Store.ReadMicrotransaction(actx.Ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Microtransaction{}, &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s (%s) in the queue", alias, id),
			Actual:   "record not found",
		}
	}
	return mt, err
}

// assertRecord verifies the fields set in the expectation.
func assertRecord(actx *AssertionContext, aliases map[string]string, a Assertion) error {
	mt, err := readAlias(actx, aliases, a.Record)
	if err != nil {
		return err
	}

	var mismatches []string
	check := func(field string, want *int, got int) {
		if want != nil && *want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", field, got, *want))
		}
	}

	x := a.Expect
	if x.Done != nil && *x.Done != mt.Done {
		mismatches = append(mismatches, fmt.Sprintf("done=%t (want %t)", mt.Done, *x.Done))
	}
	check("requested", x.Requested, mt.Progress.Requested)
	check("processed", x.Processed, mt.Progress.Processed)
	check("solvable", x.Solvable, mt.Progress.Solvable)
	check("attempts", x.Attempts, mt.Attempts)
	if x.LastOutcome != "" && ir.Outcome(x.LastOutcome) != mt.LastOutcome {
		mismatches = append(mismatches, fmt.Sprintf("last_outcome=%q (want %q)", mt.LastOutcome, x.LastOutcome))
	}
	for _, field := range x.Solved {
		if _, ok := mt.SolvedPayload[field]; !ok {
			mismatches = append(mismatches, fmt.Sprintf("solved payload lacks %s", field))
		}
	}

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s (%s) to match expectation", a.Record, mt.ID),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// assertEntityCount verifies how many rows of a kind the store holds.
func assertEntityCount(actx *AssertionContext, a Assertion) error {
	n, err := actx.Store.CountEntities(actx.Ctx, a.Kind)
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s entities", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertSameRef verifies that records resolved one entity for a field.
func assertSameRef(actx *AssertionContext, aliases map[string]string, a Assertion) error {
	seen := make(map[int64][]string)
	for _, alias := range a.Records {
		mt, err := readAlias(actx, aliases, alias)
		if err != nil {
			return err
		}
		id, ok := mt.SolvedPayload.GetInt(a.Field)
		if !ok {
			return &AssertionError{
				Type:     AssertSameRef,
				Expected: fmt.Sprintf("record %s to have resolved %s", alias, a.Field),
				Actual:   "field not in solved payload",
			}
		}
		seen[id] = append(seen[id], alias)
	}

	if len(seen) > 1 {
		var groups []string
		for id, names := range seen {
			groups = append(groups, fmt.Sprintf("%d: %s", id, strings.Join(names, ",")))
		}
		slices.Sort(groups)
		return &AssertionError{
			Type:     AssertSameRef,
			Expected: fmt.Sprintf("records %s to share %s", strings.Join(a.Records, ","), a.Field),
			Actual:   strings.Join(groups, "; "),
		}
	}
	return nil
}

// assertStuck verifies the exact set of stuck records at the end of the run.
func assertStuck(actx *AssertionContext, aliases map[string]string, a Assertion) error {
	if actx.Engine == nil {
		return fmt.Errorf("stuck assertion requires an engine")
	}
	stuck, err := actx.Engine.Stuck(actx.Ctx)
	if err != nil {
		return err
	}

	want := make([]string, 0, len(a.Records))
	for _, alias := range a.Records {
		id, err := resolveAlias(aliases, alias)
		if err != nil {
			return err
		}
		want = append(want, id)
	}
	got := make([]string, len(stuck))
	for i, s := range stuck {
		got[i] = s.ID
	}
	slices.Sort(want)
	slices.Sort(got)

	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertStuck,
			Expected: fmt.Sprintf("stuck records [%s]", strings.Join(want, ", ")),
			Actual:   fmt.Sprintf("[%s]", strings.Join(got, ", ")),
		}
	}
	return nil
}

// assertRemoved verifies that records are no longer in the queue.
func assertRemoved(actx *AssertionContext, aliases map[string]string, a Assertion) error {
	for _, alias := range a.Records {
		id, err := resolveAlias(aliases, alias)
		if err != nil {
			return err
		}
		_, err = actx.Store.ReadMicrotransaction(actx.Ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		return &AssertionError{
			Type:     AssertRemoved,
			Expected: fmt.Sprintf("record %s (%s) to be digested", alias, id),
			Actual:   "still in the queue",
		}
	}
	return nil
}
