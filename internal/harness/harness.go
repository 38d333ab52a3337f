package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/compiler"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/ident"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/store"
)

// Harness is the test execution engine for one scenario.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger

	mu     sync.Mutex
	result *Result
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes harness and engine logs to logger. Logs are discarded
// by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Run executes a test scenario and returns the result.
//
// A non-nil error means the scenario could not be executed at all (views do
// not compile or install, a setup step failed). Failed expectations and
// assertions are reported through Result.Errors instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	specs, err := compileViews(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(ident.NewSequence("doc")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	engineOpts := []engine.EngineOption{
		engine.WithLogger(o.logger),
		engine.WithFlowGenerator(ident.NewSequence("flow")),
	}
	if scenario.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	eng, err := engine.New(engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	h := &Harness{
		store:  st,
		engine: eng,
		logger: o.logger,
		result: NewResult(),
	}

	// Recorders subscribe before the views so that an event is traced
	// before the writes it causes.
	names := collectionNames(scenario, specs)
	for _, name := range names {
		h.record(st.Collection(name))
	}

	catalog := compiler.Catalog(func(name string) collection.Collection {
		return st.Collection(name)
	})
	if err := compiler.Install(eng, specs, catalog); err != nil {
		return nil, fmt.Errorf("failed to install views: %w", err)
	}

	ctx := context.Background()

	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("failed to execute setup: step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Info("setup step completed", "step", i, "op", step.Op)
	}

	for i, step := range scenario.Flow {
		report, err := h.execute(ctx, step)
		if report != nil {
			summary := summarize(i, *report)
			h.result.Reports = append(h.result.Reports, summary)
			h.checkReport(i, step, summary)
		}
		h.checkError(i, step, err)
		h.logger.Info("flow step completed", "step", i, "op", step.Op, "error", err)
	}

	for _, name := range names {
		docs, err := st.Collection(name).FindMany(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read final state of %s: %w", name, err)
		}
		h.result.State[name] = docs
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// compileViews compiles the inline views followed by each spec file.
func compileViews(scenario *Scenario) ([]compiler.ViewSpec, error) {
	var specs []compiler.ViewSpec
	if scenario.Views != "" {
		views, err := compiler.CompileString(scenario.Views, scenario.Name+".cue")
		if err != nil {
			return nil, fmt.Errorf("failed to compile views: %w", err)
		}
		specs = append(specs, views...)
	}
	for _, path := range scenario.Specs {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}
		views, err := compiler.CompileString(string(data), path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		specs = append(specs, views...)
	}
	return specs, nil
}

// collectionNames lists every collection named by the views, steps and
// assertions, sorted.
func collectionNames(scenario *Scenario, specs []compiler.ViewSpec) []string {
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" {
			seen[name] = true
		}
	}

	for _, v := range specs {
		add(v.Source)
		add(v.Target)
		for _, f := range append(append([]compiler.FieldSpec{}, v.Sync...), v.PostSync...) {
			add(f.From)
		}
		for _, b := range v.RefreshBy {
			add(b.Trigger)
		}
	}
	for _, step := range append(append([]Step{}, scenario.Setup...), scenario.Flow...) {
		add(step.Collection)
	}
	for _, a := range scenario.Assertions {
		add(a.Collection)
		for _, ref := range a.Events {
			if _, coll, err := splitEventRef(ref); err == nil {
				add(coll)
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// record traces every hook event c fires.
func (h *Harness) record(c collection.Collection) {
	for _, kind := range []collection.EventKind{collection.AfterInsert, collection.AfterUpdate, collection.AfterRemove} {
		c.Subscribe(kind, func(ctx context.Context, ev collection.Event) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.result.AddEvent(TraceEvent{
				Event:      eventName(ev.Kind),
				Collection: ev.Collection,
				ID:         ev.ID,
				FlowToken:  engine.FlowToken(ctx),
				UserID:     ev.UserID,
			})
			return nil
		})
	}
}

// execute applies one step. Refresh steps also return their report.
func (h *Harness) execute(ctx context.Context, step Step) (*engine.RefreshReport, error) {
	if step.User != "" {
		ctx = collection.WithUser(ctx, step.User)
	}

	var doc ir.Object
	if step.Doc != nil {
		var err error
		doc, err = ir.ObjectFromGo(step.Doc)
		if err != nil {
			return nil, fmt.Errorf("doc: %w", err)
		}
	}

	switch step.Op {
	case OpInsert:
		if step.ID != "" {
			doc[ir.IDField] = ir.String(step.ID)
		}
		_, err := h.store.Collection(step.Collection).Insert(ctx, doc)
		return nil, err
	case OpUpdate:
		_, err := h.store.Collection(step.Collection).Update(ctx, step.ID, doc)
		return nil, err
	case OpUpsert:
		return nil, h.store.Collection(step.Collection).Upsert(ctx, step.ID, doc)
	case OpRemove:
		_, err := h.store.Collection(step.Collection).Remove(ctx, step.ID)
		return nil, err
	case OpRefresh:
		report, err := h.engine.RefreshManually(ctx, step.View, step.IDs)
		return &report, err
	case OpRefreshAll:
		report, err := h.engine.RefreshAll(ctx, step.View)
		return &report, err
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// checkError compares a step's error with its expectation.
func (h *Harness) checkError(i int, step Step, err error) {
	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}

	switch {
	case want == "" && err != nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Op, err))
	case want != "" && err == nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %q, got success", i, step.Op, want))
	case want != "" && !errorMatches(err, want):
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %q, got: %v", i, step.Op, want, err))
	}
}

// checkReport compares the expected report counters.
func (h *Harness) checkReport(i int, step Step, got RefreshSummary) {
	if step.Expect == nil {
		return
	}
	keys := make([]string, 0, len(step.Expect.Report))
	for key := range step.Expect.Report {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if want := step.Expect.Report[key]; got.counter(key) != want {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: report %s = %d, want %d", i, step.Op, key, got.counter(key), want))
		}
	}
}

// errorMatches reports whether err carries the engine error code want, or
// failing that, mentions want in its message.
func errorMatches(err error, want string) bool {
	var engErr *engine.Error
	if errors.As(err, &engErr) && string(engErr.Code) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

func summarize(step int, r engine.RefreshReport) RefreshSummary {
	return RefreshSummary{
		Step:       step,
		View:       r.DefinitionID,
		Requested:  r.Requested,
		Recomputed: r.Recomputed,
		Unchanged:  r.Unchanged,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
	}
}
