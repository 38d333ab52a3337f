package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

// TraceEvent records one hook event observed during a scenario.
type TraceEvent struct {
	Seq        int64  `json:"seq"`
	Event      string `json:"event"` // "insert", "update" or "remove"
	Collection string `json:"collection"`
	ID         string `json:"id"`

	// FlowToken is empty for events raised directly by a scenario step and
	// set for writes made by the engine while propagating.
	FlowToken string `json:"flow_token,omitempty"`

	UserID string `json:"user,omitempty"`
}

// Ref returns the "<event> <collection>" form used by trace_order.
func (e TraceEvent) Ref() string {
	return e.Event + " " + e.Collection
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every hook event in firing order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final contents of every collection the scenario
	// touches, ordered by document id.
	State map[string][]ir.Object `json:"state,omitempty"`

	// Reports holds the refresh report of each refresh step, in order.
	Reports []RefreshSummary `json:"reports,omitempty"`
}

// RefreshSummary is a refresh report tagged with the flow step that produced it.
type RefreshSummary struct {
	Step       int    `json:"step"`
	View       string `json:"view"`
	Requested  int    `json:"requested"`
	Recomputed int    `json:"recomputed"`
	Unchanged  int    `json:"unchanged"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// counter returns the named counter; validateStep restricts the names.
func (s RefreshSummary) counter(name string) int {
	switch name {
	case "requested":
		return s.Requested
	case "recomputed":
		return s.Recomputed
	case "unchanged":
		return s.Unchanged
	case "skipped":
		return s.Skipped
	case "failed":
		return s.Failed
	}
	return -1
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]ir.Object),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a hook event to the trace, numbering it.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// eventName maps hook kinds to their scenario names.
func eventName(k collection.EventKind) string {
	switch k {
	case collection.AfterInsert:
		return "insert"
	case collection.AfterUpdate:
		return "update"
	case collection.AfterRemove:
		return "remove"
	}
	return k.String()
}

func parseEventKind(name string) (collection.EventKind, bool) {
	switch name {
	case "insert":
		return collection.AfterInsert, true
	case "update":
		return collection.AfterUpdate, true
	case "remove":
		return collection.AfterRemove, true
	}
	return 0, false
}

// splitEventRef parses "<event> <collection>".
func splitEventRef(ref string) (string, string, error) {
	event, coll, ok := strings.Cut(strings.TrimSpace(ref), " ")
	coll = strings.TrimSpace(coll)
	if !ok || coll == "" {
		return "", "", fmt.Errorf("event %q must have the form \"<event> <collection>\"", ref)
	}
	if _, ok := parseEventKind(event); !ok {
		return "", "", fmt.Errorf("event %q: unknown event %q", ref, event)
	}
	return event, coll, nil
}
