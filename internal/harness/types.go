package harness

import (
	"github.com/roach88/swimport/internal/ir"
)

// Trace event types.
const (
	EventEnqueue   = "enqueue"
	EventPass      = "pass"
	EventUntilIdle = "until_idle"
	EventAdvance   = "advance"
	EventDigest    = "digest"
)

// RecordState is a record as seen after a pass.
// Last errors are left out because they embed store-assigned entity IDs.
type RecordState struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Done        bool        `json:"done"`
	Progress    ir.Progress `json:"progress"`
	Attempts    int         `json:"attempts"`
	LastOutcome ir.Outcome  `json:"last_outcome,omitempty"`
}

// TraceEvent is one step of a scenario run.
// Only the fields of the event's type are set.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// enqueue: record IDs in request order.
	// digest: IDs of records kept because their entity is gone.
	Records []string `json:"records,omitempty"`

	// pass and until_idle
	Pass   int            `json:"pass,omitempty"` // number of the last pass run so far
	Report *ir.PassReport `json:"report,omitempty"`
	States []RecordState  `json:"states,omitempty"`

	// advance
	By string `json:"by,omitempty"`

	// digest
	Removed int      `json:"removed,omitempty"`
	Stuck   []string `json:"stuck,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains one event per step, plus one per pass.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Aliases maps scenario aliases to record IDs.
	Aliases map[string]string `json:"aliases"`

	// Entities counts permanent-store rows per kind at the end of the run.
	// Kinds without rows are left out.
	Entities map[string]int `json:"entities"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Aliases:  make(map[string]string),
		Entities: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends an event with the next sequence number.
func (r *Result) addEvent(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}

func stateOf(mt ir.Microtransaction) RecordState {
	return RecordState{
		ID:          mt.ID,
		Kind:        mt.Kind,
		Done:        mt.Done,
		Progress:    mt.Progress,
		Attempts:    mt.Attempts,
		LastOutcome: mt.LastOutcome,
	}
}
