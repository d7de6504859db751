package solver

import (
	"context"
	"fmt"

	"github.com/roach88/swimport/internal/ir"
)

// Mode tells a solver what role the kind plays for the record being solved.
type Mode int

const (
	// ModeResolve resolves an ancestor of the target: find it, or create it
	// when the kind is creatable.
	ModeResolve Mode = iota + 1

	// ModeTarget runs at the target's own depth. It checks that every
	// prerequisite ID is present and looks up an existing target row.
	// An absent target is not a failure; the commit creates it.
	ModeTarget

	// ModeCommit materializes the target: find, create or update it.
	ModeCommit
)

func (m Mode) String() string {
	switch m {
	case ModeResolve:
		return "resolve"
	case ModeTarget:
		return "target"
	case ModeCommit:
		return "commit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Input is everything a solver sees for one (record, depth, kind) attempt.
// Request and Solved are read-only.
type Input struct {
	RecordID string
	Owner    string
	Target   string // kind of the record being resolved
	Kind     string // kind to solve; equals Target in ModeTarget and ModeCommit
	Depth    int
	Mode     Mode
	Request  ir.Object
	Solved   ir.Object
}

// Result is the outcome of one solve call.
//
// IDs maps "<kind>_id" to the resolved entity ID and is only merged into the
// solved payload when the whole depth succeeds. A successful ModeTarget call
// may return no IDs.
type Result struct {
	Outcome ir.Outcome
	IDs     ir.Object
	Reason  string
}

// Solved builds a successful result.
func Solved(ids ir.Object) Result {
	return Result{Outcome: ir.OutcomeSolved, IDs: ids}
}

// Unsolved builds a transient failure: some prerequisite is not there yet.
func Unsolved(format string, args ...any) Result {
	return Result{Outcome: ir.OutcomeUnsolved, Reason: fmt.Sprintf(format, args...)}
}

// Ambiguous builds a result for a natural key matching several entities.
func Ambiguous(reason string) Result {
	return Result{Outcome: ir.OutcomeAmbiguous, Reason: reason}
}

// OK reports whether the result counts as solved.
func (r Result) OK() bool {
	return r.Outcome == ir.OutcomeSolved
}

// Solver resolves one entity kind at one depth.
//
// Returning an error means the solver itself failed (storage error, bug);
// the engine records it like an unsolved attempt and moves on. Missing data
// is reported through Result, not through the error.
type Solver interface {
	Solve(ctx context.Context, in Input) (Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, in Input) (Result, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}
