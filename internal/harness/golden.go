package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/swimport/internal/ir"
)

// Snapshot renders a run as canonical JSON: the scenario name, the trace
// and the final entity counts. Entity IDs and error texts are left out, so
// a snapshot only changes when the depth-resolution behavior does.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = eventObject(e)
	}

	entities := make(ir.Object, len(result.Entities))
	for kind, n := range result.Entities {
		entities[kind] = ir.Int(n)
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario": ir.String(name),
		"trace":    trace,
		"entities": entities,
	})
}

func eventObject(e TraceEvent) ir.Object {
	obj := ir.Object{
		"type": ir.String(e.Type),
		"seq":  ir.Int(e.Seq),
	}

	switch e.Type {
	case EventEnqueue:
		obj["records"] = stringArray(e.Records)
	case EventPass, EventUntilIdle:
		obj["pass"] = ir.Int(e.Pass)
		if e.Report != nil {
			obj["report"] = reportObject(*e.Report)
		}
		states := make(ir.Array, len(e.States))
		for i, s := range e.States {
			states[i] = stateObject(s)
		}
		obj["states"] = states
	case EventAdvance:
		obj["by"] = ir.String(e.By)
	case EventDigest:
		obj["removed"] = ir.Int(e.Removed)
		obj["missing"] = stringArray(e.Records)
		obj["stuck"] = stringArray(e.Stuck)
	}
	return obj
}

func reportObject(r ir.PassReport) ir.Object {
	return ir.Object{
		"selected":        ir.Int(r.Selected),
		"advanced":        ir.Int(r.Advanced),
		"stalled":         ir.Int(r.Stalled),
		"committed":       ir.Int(r.Committed),
		"commit_failures": ir.Int(r.CommitFailures),
		"conflicts":       ir.Int(r.Conflicts),
	}
}

func stateObject(s RecordState) ir.Object {
	obj := ir.Object{
		"id":        ir.String(s.ID),
		"kind":      ir.String(s.Kind),
		"done":      ir.Bool(s.Done),
		"requested": ir.Int(s.Progress.Requested),
		"processed": ir.Int(s.Progress.Processed),
		"solvable":  ir.Int(s.Progress.Solvable),
		"attempts":  ir.Int(s.Attempts),
	}
	if s.LastOutcome != "" {
		obj["outcome"] = ir.String(s.LastOutcome)
	}
	return obj
}

func stringArray(ss []string) ir.Array {
	arr := make(ir.Array, len(ss))
	for i, s := range ss {
		arr[i] = ir.String(s)
	}
	return arr
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
