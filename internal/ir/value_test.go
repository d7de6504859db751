package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeysUTF16Order(t *testing.T) {
	// U+FB01 (BMP) sorts after U+1F600 (surrogate pair 0xD83D...) in UTF-16
	// but before it in UTF-8 byte order.
	obj := Object{}
	obj["\ufb01"] = Int(1)
	obj["\U0001F600"] = Int(2)
	assert.Equal(t, []string{"\U0001F600", "\ufb01"}, obj.SortedKeys())
}

func TestObjectAccessors(t *testing.T) {
	obj := Object{
		"swimmer": Object{"complete_name": String("ROSSI MARIO"), "year_of_birth": Int(1975)},
		"rank":    Int(3),
	}

	sec, ok := obj.Section("swimmer")
	require.True(t, ok)
	name, ok := sec.GetString("complete_name")
	assert.True(t, ok)
	assert.Equal(t, "ROSSI MARIO", name)

	_, ok = obj.Section("rank")
	assert.False(t, ok, "scalar is not a section")

	n, ok := obj.GetInt("rank")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = obj.GetString("rank")
	assert.False(t, ok)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{"team": Object{"name": String("A")}}
	clone := orig.Clone()
	clone["team"].(Object)["name"] = String("B")

	sec, _ := orig.Section("team")
	assert.Equal(t, String("A"), sec["name"])
	assert.NotNil(t, Object(nil).Clone())
}

func TestObjectMerge(t *testing.T) {
	base := Object{"season_id": Int(1), "team_id": Int(2)}
	merged := base.Merge(Object{"team_id": Int(3), "swimmer_id": Int(4)})

	assert.Equal(t, Object{"season_id": Int(1), "team_id": Int(3), "swimmer_id": Int(4)}, merged)
	assert.Equal(t, Int(2), base["team_id"], "merge must not mutate receiver")
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"a":1,"b":"x","c":[true,{"d":9007199254740993}]}`))
	require.NoError(t, err)

	assert.Equal(t, Int(1), obj["a"])
	assert.Equal(t, String("x"), obj["b"])
	arr := obj["c"].(Array)
	assert.Equal(t, Bool(true), arr[0])
	assert.Equal(t, Int(9007199254740993), arr[1].(Object)["d"], "large ints keep precision")
}

func TestParseObjectRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"timing": 62.34}`},
		{"exponent", `{"n": 1e3}`},
		{"null", `{"n": null}`},
		{"not an object", `[1,2]`},
		{"malformed", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObject([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestObjectJSONRoundTrip(t *testing.T) {
	orig := Object{
		"swimmer": Object{"complete_name": String("ROSSI <MARIO>"), "year_of_birth": Int(1975)},
		"relay":   Bool(false),
		"laps":    Array{Int(50), Int(100)},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestStoredNullSurvivesUnmarshal(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"x":null}`), &obj))
	assert.Equal(t, Null{}, obj["x"])
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"name":  "CSI",
		"year":  1975,
		"rank":  float64(2),
		"flags": []any{true, int64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{
		"name":  String("CSI"),
		"year":  Int(1975),
		"rank":  Int(2),
		"flags": Array{Bool(true), Int(3)},
	}, v)

	_, err = FromAny(map[string]any{"timing": 62.34})
	assert.Error(t, err)

	_, err = FromAny(map[string]any{"x": nil})
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAnyInvertsFromAny(t *testing.T) {
	in := map[string]any{"a": "x", "b": int64(2), "c": []any{true}}
	obj, err := ObjectFromMap(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToAny(obj))
}
