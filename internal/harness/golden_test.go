package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios, checks its
// assertions and compares its trace against the golden file.
//
// To regenerate golden files after an intended behavior change:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.addEvent(TraceEvent{Type: EventEnqueue, Records: []string{"mt-1"}})
	result.addEvent(TraceEvent{Type: EventAdvance, By: "1h0m0s"})
	result.addEvent(TraceEvent{Type: EventDigest, Removed: 1})
	result.Entities["team"] = 1

	data, err := Snapshot("format", result)
	require.NoError(t, err)

	want := `{"entities":{"team":1},"scenario":"format","trace":[` +
		`{"records":["mt-1"],"seq":1,"type":"enqueue"},` +
		`{"by":"1h0m0s","seq":2,"type":"advance"},` +
		`{"missing":[],"removed":1,"seq":3,"stuck":[],"type":"digest"}]}`
	assert.Equal(t, want, string(data))
}
