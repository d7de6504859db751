package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while enqueueing, resolving or
// committing a microtransaction.
//
// Runtime errors include:
//   - Malformed payload: rejected at enqueue, never queued
//   - Unknown kind: the record's kind is not part of the graph
//   - Missing solver: no solver registered for a (depth, kind) pair
//   - Solver failure: a solver returned an error or panicked
//   - Commit precondition/conflict: the record cannot be persisted yet
//
// Only enqueue surfaces these to the caller. During a pass they are
// recorded on the affected record and the pass moves on.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected microtransaction, if any.
	RecordID string

	// Kind is the entity kind being processed.
	Kind string

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMalformedPayload indicates a request payload failed validation.
	ErrCodeMalformedPayload RuntimeErrorCode = "MALFORMED_PAYLOAD"

	// ErrCodeUnknownKind indicates a kind that the graph does not declare.
	ErrCodeUnknownKind RuntimeErrorCode = "UNKNOWN_KIND"

	// ErrCodeMissingSolver indicates no solver is registered for (depth, kind).
	ErrCodeMissingSolver RuntimeErrorCode = "MISSING_SOLVER"

	// ErrCodeSolverFailed indicates a solver returned an error or panicked.
	ErrCodeSolverFailed RuntimeErrorCode = "SOLVER_FAILED"

	// ErrCodeCommitPrecondition indicates a commit on a record that is done,
	// not fully solved, or lacks a prerequisite ID.
	ErrCodeCommitPrecondition RuntimeErrorCode = "COMMIT_PRECONDITION"

	// ErrCodeCommitConflict indicates the commit did not persist. Transient.
	ErrCodeCommitConflict RuntimeErrorCode = "COMMIT_CONFLICT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RecordID != "" && e.Kind != "" {
		return fmt.Sprintf("%s: %s (record=%s, kind=%s)", e.Code, e.Message, e.RecordID, e.Kind)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsMalformed returns true if the error rejected a request at enqueue.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedPayload) || hasCode(err, ErrCodeUnknownKind)
}

// IsCommitConflict returns true if the error is a transient commit failure.
func IsCommitConflict(err error) bool {
	return hasCode(err, ErrCodeCommitConflict)
}

// NewMalformedError creates a RuntimeError for a rejected request payload.
func NewMalformedError(kind string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMalformedPayload,
		Message: cause.Error(),
		Kind:    kind,
		err:     cause,
	}
}

// NewUnknownKindError creates a RuntimeError for a kind missing from the graph.
func NewUnknownKindError(recordID, kind string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownKind,
		Message:  "kind is not declared in the dependency graph",
		RecordID: recordID,
		Kind:     kind,
	}
}

// NewMissingSolverError creates a RuntimeError for an unregistered (depth, kind).
func NewMissingSolverError(recordID, kind string, depth int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMissingSolver,
		Message:  fmt.Sprintf("no solver registered at depth %d", depth),
		RecordID: recordID,
		Kind:     kind,
		Details:  map[string]string{"depth": fmt.Sprintf("%d", depth)},
	}
}

// NewSolverError creates a RuntimeError wrapping a solver error or panic.
func NewSolverError(recordID, kind string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeSolverFailed,
		Message:  cause.Error(),
		RecordID: recordID,
		Kind:     kind,
		err:      cause,
	}
}

// NewCommitPreconditionError creates a RuntimeError for a commit that must
// not run yet.
func NewCommitPreconditionError(recordID, kind, reason string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCommitPrecondition,
		Message:  reason,
		RecordID: recordID,
		Kind:     kind,
	}
}

// NewCommitConflictError creates a RuntimeError for a commit that did not
// persist and will be retried by a later pass.
func NewCommitConflictError(recordID, kind, reason string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCommitConflict,
		Message:  reason,
		RecordID: recordID,
		Kind:     kind,
		err:      cause,
	}
}
