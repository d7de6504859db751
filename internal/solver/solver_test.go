package solver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "solver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func resultPayload() ir.Object {
	return ir.Object{
		"season":          ir.Object{"code": ir.String("2024-25")},
		"team":            ir.Object{"name": ir.String("CSI Nuoto Ober Ferrari")},
		"swimmer":         ir.Object{"complete_name": ir.String("ROSSI  Mario"), "year_of_birth": ir.Int(1975)},
		"meeting":         ir.Object{"code": ir.String("csiprova1")},
		"meeting_session": ir.Object{"session_order": ir.Int(1)},
		"meeting_event":   ir.Object{"event_code": ir.String("100SL")},
		"meeting_program": ir.Object{"category_code": ir.String("M45"), "gender_code": ir.String("M")},
		"meeting_individual_result": ir.Object{
			"rank":   ir.Int(1),
			"timing": ir.String("1:02.34"),
		},
	}
}

func TestNormalizeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Rossi   MARIO ", "rossi mario"},
		{"Nicolò", "nicolò"},
		{"STRASSE", "strasse"},
		{"Straße", "strasse"},
		{"tab\tand\nnewline", "tab and newline"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeString(tt.in), tt.in)
	}
}

func TestNormalizeKeyKeepsNonStrings(t *testing.T) {
	key := ir.Object{"name": ir.String(" A "), "year": ir.Int(1990), "relay": ir.Bool(true)}
	got := NormalizeKey(key)
	assert.Equal(t, ir.Object{"name": ir.String("a"), "year": ir.Int(1990), "relay": ir.Bool(true)}, got)
	assert.Equal(t, ir.String(" A "), key["name"], "input must not be modified")
}

func TestRegistry(t *testing.T) {
	g := depgraph.MustDefault()
	r := NewRegistry(g)
	noop := SolverFunc(func(context.Context, Input) (Result, error) { return Solved(nil), nil })

	require.NoError(t, r.Register(1, "team", noop))
	_, ok := r.Lookup(1, "team")
	assert.True(t, ok)
	_, ok = r.Lookup(2, "team")
	assert.False(t, ok)

	assert.Error(t, r.Register(1, "team", noop), "duplicate registration")
	assert.Error(t, r.Register(2, "team", noop), "wrong depth")
	assert.Error(t, r.Register(1, "coach", noop), "unknown kind")
	assert.Error(t, r.Register(3, "badge", nil), "nil solver")

	require.NoError(t, r.Replace(1, "team", noop))
	assert.Same(t, g, r.Graph())
}

func TestDefaultRegistryCoversEveryKind(t *testing.T) {
	g := depgraph.MustDefault()
	r, err := NewDefaultRegistry(g, newTestStore(t))
	require.NoError(t, err)

	for _, spec := range g.Kinds() {
		_, ok := r.Lookup(spec.Depth, spec.Name)
		assert.True(t, ok, "%s@%d", spec.Name, spec.Depth)
	}
}

func TestEntitySolverResolveCreatesCreatableKinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	in := Input{RecordID: "mt-1", Target: "meeting_individual_result", Kind: "swimmer", Depth: 1, Mode: ModeResolve, Request: resultPayload()}
	res, err := es.Solve(ctx, in)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Reason)
	id, ok := res.IDs.GetInt("swimmer_id")
	require.True(t, ok)

	e, err := s.ReadEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mt-1", e.CreatedBy)
	assert.Equal(t, ir.String("rossi mario"), e.NaturalKey["complete_name"])
	assert.Equal(t, ir.String("ROSSI  Mario"), e.Attributes["complete_name"], "attributes keep the given spelling")

	// A differently spelled request resolves to the same row.
	payload := resultPayload()
	payload["swimmer"] = ir.Object{"complete_name": ir.String("rossi mario"), "year_of_birth": ir.Int(1975)}
	in.Request = payload
	in.RecordID = "mt-2"
	res, err = es.Solve(ctx, in)
	require.NoError(t, err)
	again, _ := res.IDs.GetInt("swimmer_id")
	assert.Equal(t, id, again)
}

func TestEntitySolverResolveUsesSolvedPrerequisites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	res, err := es.Solve(ctx, Input{Kind: "meeting", Depth: 2, Mode: ModeResolve, Request: resultPayload(), Solved: ir.Object{}})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeUnsolved, res.Outcome)
	assert.Contains(t, res.Reason, "season_id")

	res, err = es.Solve(ctx, Input{Kind: "meeting", Depth: 2, Mode: ModeResolve, Request: resultPayload(), Solved: ir.Object{"season_id": ir.Int(9)}})
	require.NoError(t, err)
	require.True(t, res.OK())
	id, _ := res.IDs.GetInt("meeting_id")
	e, err := s.ReadEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(9), e.NaturalKey["season_id"])
}

func TestEntitySolverNonCreatableAncestorMustExist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	solved := ir.Object{"meeting_program_id": ir.Int(5), "swimmer_id": ir.Int(6), "team_id": ir.Int(7)}
	in := Input{Target: "lap", Kind: "meeting_individual_result", Depth: 6, Mode: ModeResolve, Request: resultPayload(), Solved: solved}

	res, err := es.Solve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeUnsolved, res.Outcome)
	n, _ := s.CountEntities(ctx, "meeting_individual_result")
	assert.Zero(t, n, "a lap must never create its result")

	commit := in
	commit.Target = "meeting_individual_result"
	commit.Mode = ModeCommit
	created, err := es.Solve(ctx, commit)
	require.NoError(t, err)
	require.True(t, created.OK())

	res, err = es.Solve(ctx, in)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, created.IDs, res.IDs)
}

func TestEntitySolverTargetMode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	in := Input{Target: "team", Kind: "team", Depth: 1, Mode: ModeTarget, Request: resultPayload(), Solved: ir.Object{}}
	res, err := es.Solve(ctx, in)
	require.NoError(t, err)
	require.True(t, res.OK(), "absent target is fine")
	assert.Empty(t, res.IDs)
	n, _ := s.CountEntities(ctx, "team")
	assert.Zero(t, n, "target mode never creates")

	in.Kind, in.Target, in.Depth = "meeting_individual_result", "meeting_individual_result", 6
	in.Solved = ir.Object{"meeting_program_id": ir.Int(1), "swimmer_id": ir.Int(2)}
	res, err = es.Solve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeUnsolved, res.Outcome)
	assert.Contains(t, res.Reason, "team")
}

func TestEntitySolverCommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	in := Input{RecordID: "mt-1", Target: "team", Kind: "team", Depth: 1, Mode: ModeCommit, Request: resultPayload(), Solved: ir.Object{}}
	first, err := es.Solve(ctx, in)
	require.NoError(t, err)
	second, err := es.Solve(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.IDs, second.IDs)
	n, _ := s.CountEntities(ctx, "team")
	assert.Equal(t, 1, n)
}

func TestEntitySolverAmbiguous(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	g := depgraph.MustDefault()
	es := NewEntitySolver(g, s)

	spec, _ := g.Kind("team")
	dup, err := es.Entity(spec, ir.Object{"name": ir.String("csi nuoto ober ferrari")}, nil)
	require.NoError(t, err)
	_, err = s.InsertEntity(ctx, dup)
	require.NoError(t, err)
	_, err = s.InsertEntity(ctx, dup)
	require.NoError(t, err)

	for _, mode := range []Mode{ModeResolve, ModeTarget, ModeCommit} {
		res, err := es.Solve(ctx, Input{Kind: "team", Depth: 1, Mode: mode, Request: resultPayload()})
		require.NoError(t, err, mode.String())
		assert.Equal(t, ir.OutcomeAmbiguous, res.Outcome, mode.String())
		assert.Contains(t, res.Reason, "2 candidates", mode.String())
	}
	n, _ := s.CountEntities(ctx, "team")
	assert.Equal(t, 2, n)
}

func TestEntitySolverKnownID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	es := NewEntitySolver(depgraph.MustDefault(), s)

	spec, _ := depgraph.MustDefault().Kind("season")
	e, err := es.Entity(spec, ir.Object{"code": ir.String("2023-24")}, nil)
	require.NoError(t, err)
	id, err := s.InsertEntity(ctx, e)
	require.NoError(t, err)

	payload := resultPayload()
	payload["season"] = ir.Object{"id": ir.Int(id)}
	res, err := es.Solve(ctx, Input{Kind: "season", Depth: 1, Mode: ModeResolve, Request: payload})
	require.NoError(t, err)
	got, _ := res.IDs.GetInt("season_id")
	assert.Equal(t, id, got)

	payload["season"] = ir.Object{"id": ir.Int(id + 100)}
	res, err = es.Solve(ctx, Input{Kind: "season", Depth: 1, Mode: ModeResolve, Request: payload})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeUnsolved, res.Outcome)
}

type failingStore struct{ EntityStore }

func (failingStore) FindOrCreateEntity(context.Context, ir.Entity, bool) (int64, bool, error) {
	return 0, false, errors.New("disk I/O error")
}

func TestEntitySolverStoreErrorsPropagate(t *testing.T) {
	es := NewEntitySolver(depgraph.MustDefault(), failingStore{})
	_, err := es.Solve(context.Background(), Input{Kind: "team", Depth: 1, Mode: ModeResolve, Request: resultPayload()})
	assert.ErrorContains(t, err, "disk I/O error")
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "resolve", ModeResolve.String())
	assert.Equal(t, "target", ModeTarget.String())
	assert.Equal(t, "commit", ModeCommit.String())
	assert.Equal(t, "mode(0)", Mode(0).String())
}
