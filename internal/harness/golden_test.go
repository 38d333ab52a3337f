package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldenScenario() *Scenario {
	return &Scenario{
		Name:        "golden_chain",
		Description: "a two-view cascade",
		Views:       chainViews,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1), User: "u1"},
			{Op: OpRemove, Collection: "a", ID: "a-1"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "c", Count: 0},
		},
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.AddEvent(TraceEvent{Event: "insert", Collection: "a", ID: "a-1", UserID: "u1"})
	result.AddEvent(TraceEvent{Event: "insert", Collection: "b", ID: "a-1", FlowToken: "flow-1"})
	result.State["b"] = nil

	data, err := Snapshot("snap", result)
	require.NoError(t, err)

	want := `{"scenario_name":"snap",` +
		`"state":{"b":[]},` +
		`"trace":[` +
		`{"collection":"a","event":"insert","id":"a-1","seq":1,"user":"u1"},` +
		`{"collection":"b","event":"insert","flow_token":"flow-1","id":"a-1","seq":2}]}`
	assert.Equal(t, want, string(data))
}

func TestRunWithGoldenDir(t *testing.T) {
	dir := t.TempDir()
	scenario := goldenScenario()

	// Record the fixture from a first run, then compare a second run against it.
	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	data, err := Snapshot(scenario.Name, result)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, scenario.Name+".golden"), data, 0644))

	require.NoError(t, RunWithGoldenDir(t, scenario, dir))
}

func TestSnapshot_ContainsFlowTokens(t *testing.T) {
	result, err := Run(goldenScenario())
	require.NoError(t, err)

	// insert a, insert b, insert c (one flow), then the removals in a second flow.
	require.Len(t, result.Trace, 6)
	tokens := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		tokens[i] = ev.FlowToken
	}
	assert.Equal(t, []string{"", "flow-1", "flow-1", "", "flow-2", "flow-2"}, tokens)
	assert.Equal(t, "remove c", result.Trace[5].Ref())
}
