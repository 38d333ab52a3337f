package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/viewsync/internal/ir"
)

// GoldenDir is where RunWithGolden keeps its fixtures.
const GoldenDir = "testdata/golden"

// Snapshot captures the trace and final collection contents of a scenario
// execution as canonical JSON, for deterministic comparison.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, event := range result.Trace {
		ev := ir.Object{
			"seq":        ir.Int(event.Seq),
			"event":      ir.String(event.Event),
			"collection": ir.String(event.Collection),
			"id":         ir.String(event.ID),
		}
		if event.FlowToken != "" {
			ev["flow_token"] = ir.String(event.FlowToken)
		}
		if event.UserID != "" {
			ev["user"] = ir.String(event.UserID)
		}
		trace[i] = ev
	}

	state := make(ir.Object, len(result.State))
	for name, docs := range result.State {
		arr := make(ir.Array, len(docs))
		for i, doc := range docs {
			arr[i] = doc
		}
		state[name] = arr
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario_name": ir.String(scenarioName),
		"trace":         trace,
		"state":         state,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()
	return RunWithGoldenDir(t, scenario, GoldenDir)
}

// RunWithGoldenDir is RunWithGolden with an explicit fixture directory.
func RunWithGoldenDir(t *testing.T, scenario *Scenario, dir string) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return assertGolden(t, dir, scenario.Name, result)
}

// AssertGolden compares an already executed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGolden(t, GoldenDir, scenarioName, result)
}

func assertGolden(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
