package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/swimport/internal/depgraph"
)

func TestRuntimeError_Format(t *testing.T) {
	err := NewMissingSolverError("mt-1", "team", 1)
	assert.Equal(t, "MISSING_SOLVER: no solver registered at depth 1 (record=mt-1, kind=team)", err.Error())
	assert.Equal(t, "1", err.Details["depth"])

	err = NewUnknownKindError("", "coach")
	assert.Equal(t, "UNKNOWN_KIND: kind is not declared in the dependency graph (kind=coach)", err.Error())

	err = &RuntimeError{Code: ErrCodeCommitConflict, Message: "boom"}
	assert.Equal(t, "COMMIT_CONFLICT: boom", err.Error())
}

func TestRuntimeError_Predicates(t *testing.T) {
	payloadErr := &depgraph.PayloadError{Kind: "team", Problems: []string{`missing section "team"`}}
	malformed := fmt.Errorf("request 0: %w", NewMalformedError("team", payloadErr))

	assert.True(t, IsMalformed(malformed))
	assert.True(t, IsMalformed(NewUnknownKindError("", "coach")))
	assert.False(t, IsMalformed(NewCommitConflictError("mt-1", "team", "locked", nil)))
	assert.False(t, IsMalformed(errors.New("plain")))

	var pe *depgraph.PayloadError
	assert.True(t, errors.As(malformed, &pe), "the payload problems stay reachable")
	assert.Equal(t, "team", pe.Kind)

	conflict := fmt.Errorf("pass: %w", NewCommitConflictError("mt-1", "team", "locked", errLostRace))
	assert.True(t, IsCommitConflict(conflict))
	assert.True(t, errors.Is(conflict, errLostRace))
	assert.False(t, IsCommitConflict(NewCommitPreconditionError("mt-1", "team", "not solved")))
}
