package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swimport/internal/ir"
)

func TestCompileKindBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kind: meeting_program: {
			depth: 5
			requires: ["meeting_event"]
			key: ["meeting_event_id", "category_code", "gender_code"]
			fields: {
				category_code: string
				gender_code: string
				program_order: int
				out_of_race: bool
			}
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileKind(v.LookupPath(cue.ParsePath("kind.meeting_program")))
	require.NoError(t, err)

	assert.Equal(t, "meeting_program", spec.Name)
	assert.Equal(t, 5, spec.Depth)
	assert.True(t, spec.Creatable, "creatable defaults to true")
	assert.Equal(t, []string{"meeting_event"}, spec.Requires)
	assert.Equal(t, []string{"meeting_event_id", "category_code", "gender_code"}, spec.Key)
	assert.Equal(t, map[string]string{
		"category_code": ir.FieldString,
		"gender_code":   ir.FieldString,
		"program_order": ir.FieldInt,
		"out_of_race":   ir.FieldBool,
	}, spec.Fields)
}

func TestCompileKindOptionalDepthAndCreatable(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		kind: lap: {
			creatable: false
			requires: ["meeting_individual_result"]
			key: ["meeting_individual_result_id", "length_in_meters"]
			fields: {length_in_meters: int, timing: string}
		}
	`)
	spec, err := CompileKind(v.LookupPath(cue.ParsePath("kind.lap")))
	require.NoError(t, err)

	assert.Equal(t, 0, spec.Depth, "depth left to derivation")
	assert.False(t, spec.Creatable)
}

func TestCompileKindErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing key",
			src:   `kind: team: {fields: {name: string}}`,
			field: "team.key",
		},
		{
			name:  "zero depth",
			src:   `kind: team: {depth: 0, key: ["name"], fields: {name: string}}`,
			field: "team.depth",
		},
		{
			name:  "float field",
			src:   `kind: lap: {key: ["timing"], fields: {timing: float}}`,
			field: "type",
		},
		{
			name:  "reserved id field",
			src:   `kind: team: {key: ["name"], fields: {name: string, id: int}}`,
			field: "team.fields.id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource([]byte(tt.src), "test.cue")
			require.Error(t, err)

			var cerr *CompileError
			require.True(t, errors.As(err, &cerr), "expected CompileError, got %T", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestCompileSourceSortsKinds(t *testing.T) {
	specs, err := CompileSource([]byte(`
		kind: team: {depth: 1, key: ["name"], fields: {name: string}}
		kind: season: {depth: 1, key: ["code"], fields: {code: string}}
	`), "graph.cue")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "season", specs[0].Name)
	assert.Equal(t, "team", specs[1].Name)
}

func TestCompileSourceNoKinds(t *testing.T) {
	_, err := CompileSource([]byte(`other: 1`), "graph.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kinds declared")
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, err := CompileSource([]byte(`kind: team: {`), "broken.cue")
	require.Error(t, err)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.cue")
	require.NoError(t, os.WriteFile(path, []byte(`kind: season: {key: ["code"], fields: {code: string}}`), 0644))

	specs, err := CompileFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "season", specs[0].Name)

	_, err = CompileFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
