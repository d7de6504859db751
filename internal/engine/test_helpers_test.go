package engine

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/solver"
	"github.com/roach88/swimport/internal/store"
	"github.com/roach88/swimport/internal/testutil"
)

type fixture struct {
	ctx      context.Context
	store    *store.Store
	graph    *depgraph.Graph
	registry *solver.Registry
	clock    *testutil.ManualClock
	engine   *Engine
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newFixture builds an engine over a fresh database with the default graph
// and registry, a manual clock and "mt-N" record IDs.
func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	return newFixtureAt(t, filepath.Join(t.TempDir(), "engine.db"), "mt", opts...)
}

func newFixtureAt(t *testing.T, path, idPrefix string, opts ...EngineOption) *fixture {
	t.Helper()
	s := openStore(t, path)
	g := depgraph.MustDefault()
	reg, err := solver.NewDefaultRegistry(g, s)
	require.NoError(t, err)

	clock := testutil.NewManualClock(time.Time{})
	base := []EngineOption{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator(idPrefix)),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	return &fixture{
		ctx:      context.Background(),
		store:    s,
		graph:    g,
		registry: reg,
		clock:    clock,
		engine:   New(s, g, reg, append(base, opts...)...),
	}
}

func (f *fixture) enqueue(t *testing.T, kind string, payload ir.Object) string {
	t.Helper()
	id, err := f.engine.Enqueue(f.ctx, Request{Owner: "import-test", Kind: kind, Payload: payload})
	require.NoError(t, err)
	return id
}

func (f *fixture) read(t *testing.T, id string) ir.Microtransaction {
	t.Helper()
	mt, err := f.store.ReadMicrotransaction(f.ctx, id)
	require.NoError(t, err)
	return mt
}

func (f *fixture) pass(t *testing.T) ir.PassReport {
	t.Helper()
	r, err := f.engine.RunPass(f.ctx)
	require.NoError(t, err)
	return r
}

func (f *fixture) count(t *testing.T, kind string) int {
	t.Helper()
	n, err := f.store.CountEntities(f.ctx, kind)
	require.NoError(t, err)
	return n
}

// progressSnapshot maps record ID to progress for every record in the queue.
func (f *fixture) progressSnapshot(t *testing.T) map[string]ir.Microtransaction {
	t.Helper()
	all, err := f.store.ReadAll(f.ctx)
	require.NoError(t, err)
	out := make(map[string]ir.Microtransaction, len(all))
	for _, mt := range all {
		out[mt.ID] = mt
	}
	return out
}

// assertInvariants checks solvable <= processed <= requested and
// done => solvable == requested on every record.
func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	for id, mt := range f.progressSnapshot(t) {
		assert.True(t, mt.Progress.Valid(), "%s: %+v", id, mt.Progress)
		if mt.Done {
			assert.True(t, mt.FullySolved(), "%s done with %+v", id, mt.Progress)
		}
	}
}

func runtimeCode(t *testing.T, err error) RuntimeErrorCode {
	t.Helper()
	var re *RuntimeError
	require.True(t, errors.As(err, &re), "want *RuntimeError, got %v", err)
	return re.Code
}

func resultPayload() ir.Object {
	return ir.Object{
		"season":          ir.Object{"code": ir.String("2024-25")},
		"team":            ir.Object{"name": ir.String("CSI Nuoto Ober Ferrari")},
		"swimmer":         ir.Object{"complete_name": ir.String("ROSSI MARIO"), "year_of_birth": ir.Int(1975)},
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

// with returns a copy of p with kind's section replaced.
func with(p ir.Object, kind string, section ir.Object) ir.Object {
	out := p.Clone()
	out[kind] = section
	return out
}

func swimmer(name string, year int64) ir.Object {
	return ir.Object{"complete_name": ir.String(name), "year_of_birth": ir.Int(year)}
}

func lapPayload(length int64) ir.Object {
	return with(resultPayload(), "lap", ir.Object{
		"length_in_meters": ir.Int(length),
		"timing":           ir.String("0:29.80"),
	})
}

func relaySwimmerPayload() ir.Object {
	p := resultPayload()
	delete(p, "meeting_individual_result")
	p["meeting_program"] = ir.Object{"category_code": ir.String("M200"), "gender_code": ir.String("X")}
	p["meeting_relay_result"] = ir.Object{"relay_code": ir.String("A"), "rank": ir.Int(2)}
	p["meeting_relay_swimmer"] = ir.Object{"relay_order": ir.Int(1), "timing": ir.String("0:31.02")}
	return p
}

// flakySolver fails the first n calls made in one mode, then delegates.
type flakySolver struct {
	inner    solver.Solver
	mode     solver.Mode
	failures atomic.Int32
}

func newFlakySolver(inner solver.Solver, mode solver.Mode, n int32) *flakySolver {
	s := &flakySolver{inner: inner, mode: mode}
	s.failures.Store(n)
	return s
}

func (s *flakySolver) Solve(ctx context.Context, in solver.Input) (solver.Result, error) {
	if in.Mode == s.mode && s.failures.Add(-1) >= 0 {
		return solver.Result{}, errors.New("database is locked")
	}
	return s.inner.Solve(ctx, in)
}
