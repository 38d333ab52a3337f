package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/viewsync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Ref(), event.ID)
			if event.FlowToken != "" {
				fmt.Fprintf(&buf, " (%s)", event.FlowToken)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// assertTraceContains checks that an event of the given kind fired on the
// collection, for the given document when ID is set.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Event == assertion.Event && event.Collection == assertion.Collection &&
			(assertion.ID == "" || event.ID == assertion.ID) {
			return nil
		}
	}

	expected := fmt.Sprintf("%s %s", assertion.Event, assertion.Collection)
	if assertion.ID != "" {
		expected += " " + assertion.ID
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed events first occur in order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		ref := event.Ref()
		if positions[ref] == 0 {
			positions[ref] = i + 1 // 1-indexed for readability
		}
	}

	for _, ref := range assertion.Events {
		if positions[ref] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", ref),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the event fired exactly Count times on the collection.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Event == assertion.Event && event.Collection == assertion.Collection {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", assertion.Count, assertion.Event, assertion.Collection),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertDocument checks a final document against the expected fields.
// Only fields listed in Expect are compared.
func assertDocument(state map[string][]ir.Object, assertion Assertion) error {
	doc, ok := findDocument(state[assertion.Collection], assertion.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("document %s in %s", assertion.ID, assertion.Collection),
			Actual:   "document not found",
		}
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected, err := ir.FromGo(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("document assertion field %q: %w", key, err)
		}

		actual, exists := doc[key]
		if !exists {
			return &AssertionError{
				Type:     AssertDocument,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, formatValue(doc)),
			}
		}

		if !ir.Equal(expected, actual) {
			return &AssertionError{
				Type:     AssertDocument,
				Expected: fmt.Sprintf("field %q = %s", key, formatValue(expected)),
				Actual:   fmt.Sprintf("field %q = %s", key, formatValue(actual)),
			}
		}
	}

	return nil
}

// assertAbsent checks that a document is not in the final state.
func assertAbsent(state map[string][]ir.Object, assertion Assertion) error {
	if doc, ok := findDocument(state[assertion.Collection], assertion.ID); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no document %s in %s", assertion.ID, assertion.Collection),
			Actual:   formatValue(doc),
		}
	}
	return nil
}

// assertCount checks the number of documents in a collection.
func assertCount(state map[string][]ir.Object, assertion Assertion) error {
	if n := len(state[assertion.Collection]); n != assertion.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d documents in %s", assertion.Count, assertion.Collection),
			Actual:   fmt.Sprintf("%d documents", n),
		}
	}
	return nil
}

func findDocument(docs []ir.Object, id string) (ir.Object, bool) {
	for _, doc := range docs {
		if docID, ok := doc.ID(); ok && docID == id {
			return doc, true
		}
	}
	return nil, false
}

// formatValue renders a value as canonical JSON for error messages.
func formatValue(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertDocument:
			err = assertDocument(result.State, assertion)
		case AssertAbsent:
			err = assertAbsent(result.State, assertion)
		case AssertCount:
			err = assertCount(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
