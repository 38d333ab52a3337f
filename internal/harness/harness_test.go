package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/testutil"
)

const copyView = `view: V: {source: "a", target: "b", sync: n: copy: "n"}`

// chainViews copies a into b and b into c.
const chainViews = `
view: V1: {source: "a", target: "b", sync: n: copy: "n"}
view: V2: {source: "b", target: "c", sync: n: copy: "n"}
`

func doc(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Views:       copyView,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1)},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Collection: "b", ID: "a-1", Expect: doc("n", 1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	// The source insert is traced before the view write it causes.
	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Seq: 1, Event: "insert", Collection: "a", ID: "a-1"}, result.Trace[0])
	assert.Equal(t, TraceEvent{Seq: 2, Event: "insert", Collection: "b", ID: "a-1", FlowToken: "flow-1"}, result.Trace[1])
}

func TestRun_GeneratedIDsAreSequential(t *testing.T) {
	scenario := &Scenario{
		Name:        "generated_ids",
		Description: "inserts without _id get doc-N ids",
		Views:       copyView,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", Doc: doc("n", 1)},
			{Op: OpInsert, Collection: "a", Doc: doc("n", 2)},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Collection: "b", ID: "doc-1", Expect: doc("n", 1)},
			{Type: AssertDocument, Collection: "b", ID: "doc-2", Expect: doc("n", 2)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "flow-2", result.Trace[3].FlowToken)
}

func TestRun_WithSetup(t *testing.T) {
	scenario := &Scenario{
		Name:        "with_setup",
		Description: "setup documents are propagated before the flow",
		Views:       copyView,
		Setup: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1)},
		},
		Flow: []Step{
			{Op: OpUpdate, Collection: "a", ID: "a-1", Doc: doc("n", 5)},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Collection: "b", ID: "a-1", Expect: doc("n", 5)},
			{Type: AssertTraceOrder, Events: []string{"insert a", "insert b", "update a", "update b"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 4)
}

func TestRun_RemovePropagates(t *testing.T) {
	scenario := &Scenario{
		Name:        "remove",
		Description: "removing the source removes the view document",
		Views:       copyView,
		Setup: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1)},
			{Op: OpInsert, Collection: "a", ID: "a-2", Doc: doc("n", 2)},
		},
		Flow: []Step{
			{Op: OpRemove, Collection: "a", ID: "a-1"},
		},
		Assertions: []Assertion{
			{Type: AssertAbsent, Collection: "b", ID: "a-1"},
			{Type: AssertCount, Collection: "b", Count: 1},
			{Type: AssertTraceCount, Event: "remove", Collection: "b", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UserReachesViewWrites(t *testing.T) {
	scenario := &Scenario{
		Name:        "user",
		Description: "the acting user is visible on nested writes",
		Views:       copyView,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1), User: "editor"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "editor", result.Trace[0].UserID)
	assert.Equal(t, "editor", result.Trace[1].UserID)
}

func TestRun_ExpectedErrorCode(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error",
		Description: "refreshing an unknown view fails with NOT_FOUND",
		Views:       copyView,
		Flow: []Step{
			{Op: OpRefresh, View: "MISSING", IDs: []string{"x"}, Expect: &ExpectClause{Error: "NOT_FOUND"}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_error",
		Description: "a failing step without expect fails the scenario",
		Views:       copyView,
		Flow: []Step{
			{Op: OpRefreshAll, View: "MISSING"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0] refresh_all: unexpected error")
	assert.Contains(t, result.Errors[0], "NOT_FOUND")
}

func TestRun_MissingExpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "an expected error that does not happen fails the scenario",
		Views:       copyView,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", Doc: doc("n", 1), Expect: &ExpectClause{Error: "boom"}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{`flow[0] insert: expected error "boom", got success`}, result.Errors)
}

func TestRun_ErrorMessageSubstring(t *testing.T) {
	scenario := &Scenario{
		Name:        "quota",
		Description: "a cascade longer than the quota fails the root write",
		Views:       chainViews,
		MaxSteps:    1,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1),
				Expect: &ExpectClause{Error: "exceeded max steps quota"}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 1},
			{Type: AssertCount, Collection: "c", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RefreshReports(t *testing.T) {
	scenario := &Scenario{
		Name:        "reports",
		Description: "refresh reports are recorded and checked",
		Views:       copyView,
		Setup: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1)},
		},
		Flow: []Step{
			{Op: OpRefresh, View: "V", IDs: []string{"a-1", "ghost"},
				Expect: &ExpectClause{Report: map[string]int{"requested": 2, "unchanged": 1, "skipped": 1}}},
			{Op: OpRefreshAll, View: "V",
				Expect: &ExpectClause{Report: map[string]int{"recomputed": 1}}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, RefreshSummary{Step: 0, View: "V", Requested: 2, Unchanged: 1, Skipped: 1}, result.Reports[0])
	assert.Equal(t, RefreshSummary{Step: 1, View: "V", Requested: 1, Unchanged: 1}, result.Reports[1])

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"flow[1] refresh_all: report recomputed = 0, want 1"}, result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "deterministic",
		Description: "identical runs give identical snapshots",
		Views:       chainViews,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", Doc: doc("n", 1)},
			{Op: OpInsert, Collection: "a", Doc: doc("n", 2)},
			{Op: OpUpdate, Collection: "a", ID: "doc-1", Doc: doc("n", 3)},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Collection: "c", ID: "doc-1", Expect: doc("n", 3)},
		},
	}

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "each run starts empty",
		Views:       copyView,
		Flow: []Step{
			{Op: OpInsert, Collection: "a", ID: "a-1", Doc: doc("n", 1)},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "b", Count: 1},
		},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d errors: %v", i, result.Errors)
	}
}

func TestRun_FailuresBeforeExecution(t *testing.T) {
	tests := []struct {
		name    string
		views   string
		setup   []Step
		wantErr string
	}{
		{
			name:    "cue syntax",
			views:   `view: V: {source: `,
			wantErr: "failed to compile views",
		},
		{
			name:    "invalid view",
			views:   `view: V: {source: "a", target: "a", sync: n: copy: "n"}`,
			wantErr: "failed to install views",
		},
		{
			name:    "setup step fails",
			views:   copyView,
			setup:   []Step{{Op: OpInsert, Collection: "a", ID: "x", Doc: doc()}, {Op: OpInsert, Collection: "a", ID: "x", Doc: doc()}},
			wantErr: "failed to execute setup: step 1 (insert)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "broken",
				Description: tt.name,
				Views:       tt.views,
				Setup:       tt.setup,
				Flow:        []Step{{Op: OpRefreshAll, View: "V"}},
				Assertions:  []Assertion{{Type: AssertCount, Collection: "b"}},
			}

			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_BlogViews(t *testing.T) {
	scenario := &Scenario{
		Name:        "blog_inline",
		Description: "the blog fixture views compile and denormalize posts",
		Views:       testutil.BlogViews,
		Setup: []Step{
			{Op: OpInsert, Collection: "authors", ID: "author-1", Doc: doc("name", "ann")},
			{Op: OpInsert, Collection: "comments", ID: "comment-1", Doc: doc("text", "first")},
		},
		Flow: []Step{
			{Op: OpInsert, Collection: "posts", ID: "post-1",
				Doc: doc("text", "hello", "authorId", "author-1", "commentIds", []interface{}{"comment-1"})},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Collection: "postsView", ID: "post-1", Expect: doc(
				"wholeText", "hello, first, ann",
				"numberOfComments", 1,
			)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	docs := result.State["postsView"]
	require.Len(t, docs, 1)
	author, ok := docs[0].Get("authorCache.name")
	require.True(t, ok)
	assert.Equal(t, ir.String("ann"), author)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_AddEventNumbersTrace(t *testing.T) {
	r := NewResult()
	r.AddEvent(TraceEvent{Event: "insert", Collection: "a", ID: "1", Seq: 42})
	r.AddEvent(TraceEvent{Event: "update", Collection: "a", ID: "1"})

	assert.Equal(t, int64(1), r.Trace[0].Seq)
	assert.Equal(t, int64(2), r.Trace[1].Seq)
	assert.Equal(t, "update a", r.Trace[1].Ref())
}
