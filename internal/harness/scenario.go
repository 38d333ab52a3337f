package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario installs views, applies a sequence of collection mutations and
// refreshes, and asserts on the resulting hook trace and collection contents.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Views is inline CUE declaring the views under test.
	Views string `yaml:"views,omitempty"`

	// Specs lists CUE view files to compile in addition to Views.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty"`

	// Setup establishes initial documents. Setup steps must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test, each optionally with an expectation.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and collection contents.
	Assertions []Assertion `yaml:"assertions"`

	// MaxSteps overrides the engine's per-flow recompute quota.
	MaxSteps int `yaml:"max_steps,omitempty"`
}

// Step is one mutation or refresh.
type Step struct {
	// Op is one of insert, update, upsert, remove, refresh, refresh_all.
	Op string `yaml:"op"`

	// Collection is the collection mutated by insert/update/upsert/remove.
	Collection string `yaml:"collection,omitempty"`

	// View is the view identifier for refresh and refresh_all.
	View string `yaml:"view,omitempty"`

	// ID addresses the document for update/upsert/remove. For insert it is
	// copied into the document's _id when set.
	ID string `yaml:"id,omitempty"`

	// IDs lists the source documents for refresh.
	IDs []string `yaml:"ids,omitempty"`

	// Doc is the document (insert, upsert) or partial document (update).
	Doc map[string]interface{} `yaml:"doc,omitempty"`

	// User is attached to the call's context as the acting user.
	User string `yaml:"user,omitempty"`

	// Expect specifies the expected outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is an engine error code (e.g. NOT_FOUND) or a substring of the
	// expected error message. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Report holds expected refresh report counters (subset match).
	// Keys: requested, recomputed, unchanged, skipped, failed.
	Report map[string]int `yaml:"report,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event kind on Collection (and ID) fired
	// - "trace_order": events listed in Events fired in that order
	// - "trace_count": Event on Collection fired exactly Count times
	// - "document": document ID in Collection matches Expect (subset)
	// - "absent": document ID is not in Collection
	// - "count": Collection holds exactly Count documents
	Type string `yaml:"type"`

	// Event is the hook kind: insert, update or remove.
	Event string `yaml:"event,omitempty"`

	// Events lists "<event> <collection>" pairs for trace_order.
	Events []string `yaml:"events,omitempty"`

	Collection string `yaml:"collection,omitempty"`

	ID string `yaml:"id,omitempty"`

	// Expect contains expected field values (document). Subset match at the
	// top level; nested values compare exactly.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of events or documents.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertDocument      = "document"
	AssertAbsent        = "absent"
	AssertCount         = "count"
)

// Step op constants.
const (
	OpInsert     = "insert"
	OpUpdate     = "update"
	OpUpsert     = "upsert"
	OpRemove     = "remove"
	OpRefresh    = "refresh"
	OpRefreshAll = "refresh_all"
)

var reportKeys = map[string]bool{
	"requested":  true,
	"recomputed": true,
	"unchanged":  true,
	"skipped":    true,
	"failed":     true,
}

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec paths BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Views == "" && len(s.Specs) == 0 {
		return fmt.Errorf("views or specs is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), &step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step carries the arguments its op needs.
func validateStep(where string, step *Step) error {
	switch step.Op {
	case OpInsert:
		if step.Collection == "" {
			return fmt.Errorf("%s: collection is required for insert", where)
		}
		if step.Doc == nil {
			return fmt.Errorf("%s: doc is required for insert", where)
		}
	case OpUpdate, OpUpsert:
		if step.Collection == "" || step.ID == "" {
			return fmt.Errorf("%s: collection and id are required for %s", where, step.Op)
		}
		if step.Doc == nil {
			return fmt.Errorf("%s: doc is required for %s", where, step.Op)
		}
	case OpRemove:
		if step.Collection == "" || step.ID == "" {
			return fmt.Errorf("%s: collection and id are required for remove", where)
		}
	case OpRefresh:
		if step.View == "" {
			return fmt.Errorf("%s: view is required for refresh", where)
		}
		if len(step.IDs) == 0 {
			return fmt.Errorf("%s: ids is required for refresh", where)
		}
	case OpRefreshAll:
		if step.View == "" {
			return fmt.Errorf("%s: view is required for refresh_all", where)
		}
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}

	if step.Expect != nil {
		for key := range step.Expect.Report {
			if !reportKeys[key] {
				return fmt.Errorf("%s.expect.report: unknown counter %q", where, key)
			}
		}
		if len(step.Expect.Report) > 0 && step.Op != OpRefresh && step.Op != OpRefreshAll {
			return fmt.Errorf("%s.expect.report: only refresh steps produce a report", where)
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if _, ok := parseEventKind(a.Event); !ok {
			return fmt.Errorf("assertions[%d]: event must be insert, update or remove for trace_contains", index)
		}
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for _, e := range a.Events {
			if _, _, err := splitEventRef(e); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTraceCount:
		if _, ok := parseEventKind(a.Event); !ok {
			return fmt.Errorf("assertions[%d]: event must be insert, update or remove for trace_count", index)
		}
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDocument:
		if a.Collection == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: collection and id are required for document", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for document", index)
		}
	case AssertAbsent:
		if a.Collection == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: collection and id are required for absent", index)
		}
	case AssertCount:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
