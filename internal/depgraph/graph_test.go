package depgraph

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swimport/internal/ir"
)

func kindSpec(name string, depth int, requires []string, key ...string) ir.KindSpec {
	fields := map[string]string{}
	for _, k := range key {
		fields[k] = ir.FieldString
	}
	spec := ir.KindSpec{Name: name, Depth: depth, Requires: requires, Key: key, Fields: fields, Creatable: true}
	for _, req := range requires {
		spec.Key = append(spec.Key, ir.RefField(req))
	}
	return spec
}

func TestDefaultGraph(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)

	assert.Len(t, g.Kinds(), 13)
	assert.Equal(t, 7, g.MaxDepth())

	for _, tc := range []struct {
		kind  string
		depth int
	}{
		{"season", 1},
		{"team", 1},
		{"swimmer", 1},
		{"team_affiliation", 2},
		{"meeting", 2},
		{"badge", 3},
		{"meeting_session", 3},
		{"meeting_event", 4},
		{"meeting_program", 5},
		{"meeting_individual_result", 6},
		{"meeting_relay_result", 6},
		{"lap", 7},
		{"meeting_relay_swimmer", 7},
	} {
		depth, ok := g.Depth(tc.kind)
		require.True(t, ok, tc.kind)
		assert.Equal(t, tc.depth, depth, tc.kind)
	}

	lap, ok := g.Kind("lap")
	require.True(t, ok)
	assert.False(t, lap.Creatable)
	team, _ := g.Kind("team")
	assert.True(t, team.Creatable)
}

func TestDefaultGraphDepthOrdering(t *testing.T) {
	g := MustDefault()
	for _, spec := range g.Kinds() {
		for _, req := range spec.Requires {
			reqDepth, _ := g.Depth(req)
			assert.Less(t, reqDepth, spec.Depth, "%s requires %s", spec.Name, req)
		}
	}
}

func TestAncestors(t *testing.T) {
	g := MustDefault()

	assert.Empty(t, g.Ancestors("team"))
	assert.Equal(t, []string{"season", "team"}, g.Ancestors("team_affiliation"))
	assert.Equal(t, []string{
		"season", "swimmer", "team",
		"meeting",
		"meeting_session",
		"meeting_event",
		"meeting_program",
		"meeting_individual_result",
	}, g.Ancestors("lap"))
	assert.Equal(t, []string{"season", "swimmer", "team", "team_affiliation", "badge"}, g.Closure("badge"))
	assert.Nil(t, g.Closure("nope"))
}

func TestKindsAt(t *testing.T) {
	g := MustDefault()

	assert.Equal(t, []string{"season", "swimmer", "team"}, g.KindsAt("badge", 1))
	assert.Equal(t, []string{"team_affiliation"}, g.KindsAt("badge", 2))
	assert.Equal(t, []string{"badge"}, g.KindsAt("badge", 3))
	assert.Equal(t, []string{"meeting"}, g.KindsAt("meeting_individual_result", 2))
	assert.Empty(t, g.KindsAt("meeting_individual_result", 7))
	assert.Empty(t, g.KindsAt("team", 2))
}

func TestQueriesReturnCopies(t *testing.T) {
	g := MustDefault()

	req := g.Requires("badge")
	req[0] = "mutated"
	assert.NotEqual(t, "mutated", g.Requires("badge")[0])

	spec, _ := g.Kind("badge")
	spec.Fields["number"] = ir.FieldInt
	again, _ := g.Kind("badge")
	assert.Equal(t, ir.FieldString, again.Fields["number"])
}

func TestNewDerivesDepth(t *testing.T) {
	g, err := New([]ir.KindSpec{
		kindSpec("c", 0, []string{"a", "b"}, "code"),
		kindSpec("a", 0, nil, "code"),
		kindSpec("b", 4, []string{"a"}, "code"),
	})
	require.NoError(t, err)

	depth, _ := g.Depth("a")
	assert.Equal(t, 1, depth)
	depth, _ = g.Depth("c")
	assert.Equal(t, 5, depth, "derived from the deepest prerequisite")
	assert.Equal(t, 5, g.MaxDepth())
	assert.Equal(t, []string{"a"}, g.KindsAt("c", 1))
	assert.Empty(t, g.KindsAt("c", 2), "no closure kind sits at a skipped depth")
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		specs   []ir.KindSpec
		kind    string
		message string
	}{
		{
			name:    "duplicate",
			specs:   []ir.KindSpec{kindSpec("a", 1, nil, "code"), kindSpec("a", 1, nil, "code")},
			kind:    "a",
			message: "declared more than once",
		},
		{
			name:    "unknown prerequisite",
			specs:   []ir.KindSpec{kindSpec("a", 2, []string{"ghost"}, "code")},
			kind:    "a",
			message: `requires unknown kind "ghost"`,
		},
		{
			name:    "self reference",
			specs:   []ir.KindSpec{kindSpec("a", 0, []string{"a"}, "code")},
			kind:    "a",
			message: "requires itself",
		},
		{
			name: "cycle",
			specs: []ir.KindSpec{
				kindSpec("a", 0, []string{"b"}, "code"),
				kindSpec("b", 0, []string{"a"}, "code"),
			},
			kind:    "b",
			message: "dependency cycle",
		},
		{
			name: "depth not above prerequisite",
			specs: []ir.KindSpec{
				kindSpec("a", 2, nil, "code"),
				kindSpec("b", 2, []string{"a"}, "code"),
			},
			kind:    "b",
			message: "depth 2 must be greater",
		},
		{
			name: "key field undeclared",
			specs: []ir.KindSpec{
				{Name: "a", Depth: 1, Key: []string{"code"}, Fields: map[string]string{}},
			},
			kind:    "a",
			message: `key field "code"`,
		},
		{
			name: "bad field type",
			specs: []ir.KindSpec{
				{Name: "a", Depth: 1, Key: []string{"code"}, Fields: map[string]string{"code": "float"}},
			},
			kind:    "a",
			message: "unsupported type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs)
			require.Error(t, err)

			var graphErr *GraphError
			require.True(t, errors.As(err, &graphErr), "expected GraphError, got %T", err)
			assert.Equal(t, tt.kind, graphErr.Kind)
			assert.Contains(t, graphErr.Message, tt.message)
		})
	}
}

func TestResolveDepthDetectsCycle(t *testing.T) {
	// Kinds wired without the acyclicity check of New.
	g := &Graph{kinds: map[string]ir.KindSpec{
		"a": kindSpec("a", 0, []string{"b"}, "code"),
		"b": kindSpec("b", 0, []string{"c"}, "code"),
		"c": kindSpec("c", 0, []string{"a"}, "code"),
	}}

	_, err := g.resolveDepth("a", map[string]bool{}, nil)
	require.Error(t, err)

	var graphErr *GraphError
	require.True(t, errors.As(err, &graphErr), "expected GraphError, got %T", err)
	assert.Equal(t, "a", graphErr.Kind)
	assert.Equal(t, "dependency cycle: a -> b -> c -> a", graphErr.Message)
}

func TestResolveDepthSharedPrerequisite(t *testing.T) {
	g := &Graph{kinds: map[string]ir.KindSpec{
		"root":  kindSpec("root", 0, nil, "code"),
		"left":  kindSpec("left", 0, []string{"root"}, "code"),
		"right": kindSpec("right", 0, []string{"root"}, "code"),
		"leaf":  kindSpec("leaf", 0, []string{"left", "right"}, "code"),
	}}

	depth, err := g.resolveDepth("leaf", map[string]bool{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.Equal(t, 1, g.kinds["root"].Depth)
}

func TestNewEmpty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
kind: club: {
	key: ["name"]
	fields: {name: string}
}
kind: member: {
	requires: ["club"]
	key: ["club_id", "name"]
	fields: {name: string}
}
`), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	depth, ok := g.Depth("member")
	require.True(t, ok)
	assert.Equal(t, 2, depth)

	def, err := Load("")
	require.NoError(t, err)
	assert.Len(t, def.Kinds(), 13)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}

func TestValidatePayload(t *testing.T) {
	g := MustDefault()

	valid := ir.Object{
		"season":           ir.Object{"code": ir.String("2024-25")},
		"team":             ir.Object{"id": ir.Int(42)},
		"swimmer":          ir.Object{"complete_name": ir.String("Ada Rossi"), "year_of_birth": ir.Int(1990)},
		"team_affiliation": ir.Object{"name": ir.String("Rari Nantes")},
		"badge":            ir.Object{"number": ir.String("B-1")},
	}
	require.NoError(t, g.ValidatePayload("badge", valid))

	tests := []struct {
		name    string
		kind    string
		mutate  func(ir.Object)
		problem string
	}{
		{
			name:    "missing section",
			kind:    "badge",
			mutate:  func(p ir.Object) { delete(p, "swimmer") },
			problem: `missing section "swimmer"`,
		},
		{
			name:    "unknown section",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["coach"] = ir.Object{} },
			problem: `unknown section "coach"`,
		},
		{
			name:    "section not an object",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["team"] = ir.String("Rari") },
			problem: `section "team" must be an object`,
		},
		{
			name:    "missing natural key",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["season"] = ir.Object{"description": ir.String("x")} },
			problem: "season.code is required by the natural key",
		},
		{
			name:    "blank key",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["season"] = ir.Object{"code": ir.String("  ")} },
			problem: "season.code must not be blank",
		},
		{
			name: "wrong type",
			kind: "badge",
			mutate: func(p ir.Object) {
				p["swimmer"] = ir.Object{"complete_name": ir.String("Ada"), "year_of_birth": ir.String("1990")}
			},
			problem: "swimmer.year_of_birth must be int",
		},
		{
			name:    "undeclared field",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["badge"] = ir.Object{"color": ir.String("red")} },
			problem: "badge.color is not a declared field",
		},
		{
			name:    "non-positive id",
			kind:    "badge",
			mutate:  func(p ir.Object) { p["team"] = ir.Object{"id": ir.Int(0)} },
			problem: "team.id must be a positive integer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := valid.Clone()
			tt.mutate(payload)

			err := g.ValidatePayload(tt.kind, payload)
			var payloadErr *PayloadError
			require.True(t, errors.As(err, &payloadErr), "expected PayloadError, got %v", err)
			assert.Equal(t, tt.kind, payloadErr.Kind)
			assert.Contains(t, payloadErr.Problems, tt.problem)
		})
	}
}

func TestValidatePayloadIgnoresSectionsOutsideClosure(t *testing.T) {
	g := MustDefault()

	err := g.ValidatePayload("team", ir.Object{
		"team":    ir.Object{"name": ir.String("Rari Nantes")},
		"swimmer": ir.Object{"complete_name": ir.String("Ada Rossi"), "year_of_birth": ir.Int(1990)},
	})
	assert.NoError(t, err)
}

func TestValidatePayloadUnknownKind(t *testing.T) {
	err := MustDefault().ValidatePayload("coach", ir.Object{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
