package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/ir"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Event: "insert", Collection: "posts", ID: "post-1"},
		{Seq: 2, Event: "insert", Collection: "postsView", ID: "post-1", FlowToken: "flow-1"},
		{Seq: 3, Event: "update", Collection: "authors", ID: "author-1"},
		{Seq: 4, Event: "update", Collection: "postsView", ID: "post-1", FlowToken: "flow-2"},
		{Seq: 5, Event: "update", Collection: "postsView", ID: "post-2", FlowToken: "flow-3"},
	}
}

func sampleState() map[string][]ir.Object {
	return map[string][]ir.Object{
		"postsView": {
			{
				"_id":              ir.String("post-1"),
				"wholeText":        ir.String("hello, first, ann"),
				"numberOfComments": ir.Int(1),
				"authorCache":      ir.Object{"_id": ir.String("author-1"), "name": ir.String("ann")},
			},
		},
	}
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"event and collection", Assertion{Event: "update", Collection: "authors"}, false},
		{"with id", Assertion{Event: "update", Collection: "postsView", ID: "post-2"}, false},
		{"wrong id", Assertion{Event: "insert", Collection: "postsView", ID: "post-2"}, true},
		{"wrong event", Assertion{Event: "remove", Collection: "posts"}, true},
		{"unknown collection", Assertion{Event: "insert", Collection: "comments"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertTraceContains
			err := assertTraceContains(sampleTrace(), tt.assertion)
			if tt.wantErr {
				var ae *AssertionError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "not found in trace", ae.Actual)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"insert posts", "update authors", "update postsView"},
	})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_UsesFirstOccurrence(t *testing.T) {
	// "update postsView" first fires at 4, after "update authors" at 3.
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"update postsView", "update authors"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update postsView (pos 4) should be before update authors (pos 3)")
}

func TestAssertTraceOrder_MissingEvent(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"insert posts", "remove postsView"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event: remove postsView")
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		event, collection string
		count             int
		wantErr           bool
	}{
		{"update", "postsView", 2, false},
		{"insert", "postsView", 1, false},
		{"remove", "postsView", 0, false},
		{"update", "postsView", 1, true},
		{"update", "postsView", 3, true},
	}

	for _, tt := range tests {
		err := assertTraceCount(sampleTrace(), Assertion{
			Type: AssertTraceCount, Event: tt.event, Collection: tt.collection, Count: tt.count,
		})
		if tt.wantErr {
			assert.Error(t, err, "%s %s x%d", tt.event, tt.collection, tt.count)
		} else {
			assert.NoError(t, err, "%s %s x%d", tt.event, tt.collection, tt.count)
		}
	}
}

func TestAssertDocument_SubsetMatch(t *testing.T) {
	err := assertDocument(sampleState(), Assertion{
		Type:       AssertDocument,
		Collection: "postsView",
		ID:         "post-1",
		Expect: map[string]interface{}{
			"wholeText":        "hello, first, ann",
			"numberOfComments": 1,
		},
	})
	assert.NoError(t, err)
}

func TestAssertDocument_NestedValuesCompareExactly(t *testing.T) {
	state := sampleState()

	err := assertDocument(state, Assertion{
		Collection: "postsView",
		ID:         "post-1",
		Expect: map[string]interface{}{
			"authorCache": map[string]interface{}{"_id": "author-1", "name": "ann"},
		},
	})
	assert.NoError(t, err)

	err = assertDocument(state, Assertion{
		Collection: "postsView",
		ID:         "post-1",
		Expect: map[string]interface{}{
			"authorCache": map[string]interface{}{"name": "ann"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "authorCache" = {"name":"ann"}`)
}

func TestAssertDocument_Failures(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		expect map[string]interface{}
		want   string
	}{
		{"missing document", "post-9", map[string]interface{}{"x": 1}, "document not found"},
		{"missing field", "post-1", map[string]interface{}{"title": "x"}, `field "title" not present`},
		{"value mismatch", "post-1", map[string]interface{}{"numberOfComments": 2}, `field "numberOfComments" = 1`},
		{"type mismatch", "post-1", map[string]interface{}{"numberOfComments": "1"}, `field "numberOfComments" = "1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertDocument(sampleState(), Assertion{
				Type: AssertDocument, Collection: "postsView", ID: tt.id, Expect: tt.expect,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertAbsent(t *testing.T) {
	assert.NoError(t, assertAbsent(sampleState(), Assertion{Collection: "postsView", ID: "post-2"}))
	assert.NoError(t, assertAbsent(sampleState(), Assertion{Collection: "comments", ID: "post-1"}))

	err := assertAbsent(sampleState(), Assertion{Collection: "postsView", ID: "post-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"_id":"post-1"`)
}

func TestAssertCount(t *testing.T) {
	assert.NoError(t, assertCount(sampleState(), Assertion{Collection: "postsView", Count: 1}))
	assert.NoError(t, assertCount(sampleState(), Assertion{Collection: "comments", Count: 0}))
	assert.Error(t, assertCount(sampleState(), Assertion{Collection: "postsView", Count: 2}))
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.State = sampleState()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Event: "insert", Collection: "posts"},
		{Type: AssertTraceCount, Event: "update", Collection: "authors", Count: 1},
		{Type: AssertCount, Collection: "postsView", Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.State = sampleState()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Event: "insert", Collection: "posts"},
		{Type: AssertAbsent, Collection: "postsView", ID: "post-1"},
		{Type: "final_state"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Assertion failed: absent")
	assert.Contains(t, errs[1], `assertion[2]: unknown assertion type "final_state"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 occurrences of update postsView",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[:2],
	}

	want := "Assertion failed: trace_count\n" +
		"  Expected: 2 occurrences of update postsView\n" +
		"  Actual: 1 occurrences\n" +
		"\nFull trace:\n" +
		"  [1] insert posts post-1\n" +
		"  [2] insert postsView post-1 (flow-1)\n"
	assert.Equal(t, want, err.Error())
}
