package ir

import "time"

// Field type names accepted in kind declarations.
const (
	FieldString = "string"
	FieldInt    = "int"
	FieldBool   = "bool"
)

// ValidFieldTypes defines allowed field type names.
var ValidFieldTypes = map[string]bool{
	FieldString: true,
	FieldInt:    true,
	FieldBool:   true,
}

// IDField is the payload field carrying an already-known numeric ID.
const IDField = "id"

// KindSpec is one compiled entity kind of the dependency graph.
type KindSpec struct {
	Name      string            `json:"name"`
	Depth     int               `json:"depth"`
	Requires  []string          `json:"requires"`
	Key       []string          `json:"key"`
	Fields    map[string]string `json:"fields"` // field name -> type name
	Creatable bool              `json:"creatable"`
}

// RefField returns the solved-payload field holding the resolved ID of kind.
func RefField(kind string) string {
	return kind + "_id"
}

// Progress is the depth bookkeeping of a microtransaction.
type Progress struct {
	Requested int `json:"requested_depth"`
	Processed int `json:"processed_depth"`
	Solvable  int `json:"solvable_depth"`
}

// Valid reports whether solvable <= processed <= requested holds.
func (p Progress) Valid() bool {
	return p.Solvable >= 0 && p.Solvable <= p.Processed && p.Processed <= p.Requested
}

// Before reports whether moving from p to next never decreases a depth.
func (p Progress) Before(next Progress) bool {
	return p.Requested == next.Requested &&
		p.Processed <= next.Processed &&
		p.Solvable <= next.Solvable
}

// Microtransaction is one queued entity creation/update attempt.
type Microtransaction struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"seq"` // enqueue order, assigned by the store
	Owner          string    `json:"owner"`
	Batch          string    `json:"batch,omitempty"`
	Kind           string    `json:"kind"`
	RequestHash    string    `json:"request_hash"`
	RequestPayload Object    `json:"request_payload"`
	SolvedPayload  Object    `json:"solved_payload"`
	Progress       Progress  `json:"progress"`
	Done           bool      `json:"done"`
	Attempts       int       `json:"attempts"` // failed attempts at the current depth
	LastOutcome    Outcome   `json:"last_outcome,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ProgressedAt   time.Time `json:"progressed_at"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

// NextDepth is the depth the next pass attempts: the first depth that has
// not been solved yet. A failed depth is retried.
func (m Microtransaction) NextDepth() int {
	return m.Progress.Solvable + 1
}

// FullySolved reports whether every depth up to the requested one resolved.
func (m Microtransaction) FullySolved() bool {
	return m.Progress.Solvable == m.Progress.Requested
}

// TargetID returns the committed entity ID from the solved payload.
func (m Microtransaction) TargetID() (int64, bool) {
	return m.SolvedPayload.GetInt(RefField(m.Kind))
}

// Outcome classifies the result of a resolution or commit attempt.
type Outcome string

const (
	OutcomeSolved    Outcome = "solved"
	OutcomeUnsolved  Outcome = "unsolved"  // prerequisite not available yet
	OutcomeAmbiguous Outcome = "ambiguous" // several candidates for a natural key
	OutcomeFailed    Outcome = "failed"    // solver error or panic
	OutcomeConflict  Outcome = "conflict"  // persistence conflict during commit
)

// Entity is a row of the permanent store.
type Entity struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	KeyHash    string `json:"key_hash"`
	NaturalKey Object `json:"natural_key"`
	Attributes Object `json:"attributes"`
	CreatedBy  string `json:"created_by,omitempty"` // microtransaction ID
}

// PassReport summarizes one orchestrator pass.
type PassReport struct {
	Selected       int `json:"selected"`
	Advanced       int `json:"advanced"`
	Stalled        int `json:"stalled"`
	Committed      int `json:"committed"`
	CommitFailures int `json:"commit_failures"`
	Conflicts      int `json:"conflicts"` // optimistic writes lost to a concurrent pass
}

// Progressed reports whether the pass changed any record.
func (r PassReport) Progressed() bool {
	return r.Advanced > 0 || r.Committed > 0
}

// Add accumulates another report.
func (r PassReport) Add(o PassReport) PassReport {
	return PassReport{
		Selected:       r.Selected + o.Selected,
		Advanced:       r.Advanced + o.Advanced,
		Stalled:        r.Stalled + o.Stalled,
		Committed:      r.Committed + o.Committed,
		CommitFailures: r.CommitFailures + o.CommitFailures,
		Conflicts:      r.Conflicts + o.Conflicts,
	}
}

// StuckRecord is a record that stopped progressing for longer than the
// operational threshold.
type StuckRecord struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Progress     Progress      `json:"progress"`
	Attempts     int           `json:"attempts"`
	LastOutcome  Outcome       `json:"last_outcome"`
	LastError    string        `json:"last_error,omitempty"`
	StalledFor   time.Duration `json:"stalled_for"`
	ProgressedAt time.Time     `json:"progressed_at"`
}

// DigestReport summarizes one digest run.
type DigestReport struct {
	Removed int           `json:"removed"`
	Missing []string      `json:"missing,omitempty"` // done records whose entity no longer exists
	Stuck   []StuckRecord `json:"stuck,omitempty"`
}

// DepthStats counts records for one requested depth.
type DepthStats struct {
	Depth   int `json:"depth"`
	Pending int `json:"pending"`
	Stalled int `json:"stalled"` // pending and blocked, or solved with a failed commit
	Done    int `json:"done"`
}
