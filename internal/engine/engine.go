package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/viewsync/internal/ident"
)

// DefaultMaxSteps is the default maximum number of recomputes per flow.
// This prevents runaway propagation from consuming unbounded resources.
const DefaultMaxSteps = 1000

// DefaultStageConcurrency runs field functions one at a time, in declaration order.
const DefaultStageConcurrency = 1

// Engine owns the registry of definitions and refresh bindings and drives
// every recompute.
//
// Thread-safety model:
//   - Register / RegisterRefreshBinding / Deregister: safe from any goroutine
//   - Hooks run on the goroutine of the mutating call that fired them
//   - Refresh calls: safe from any goroutine; no per-document locking, last
//     write wins
type Engine struct {
	logger      *slog.Logger
	flowGen     ident.Generator
	maxSteps    int
	concurrency int
	provider    metric.MeterProvider
	metrics     *Metrics
	cycles      *CycleDetector

	mu    sync.RWMutex
	defs  map[string]*registration
	order []string // definition ids in registration order
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the maximum recomputes per flow.
//
// Default: 1000 steps (DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithStageConcurrency bounds how many field functions of one stage run at
// once. Values below 1 mean DefaultStageConcurrency.
func WithStageConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMeterProvider enables OpenTelemetry metrics. Without it the engine
// records nothing.
func WithMeterProvider(provider metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		e.provider = provider
	}
}

// WithFlowGenerator sets the flow token generator. Default: ident.UUIDv7.
func WithFlowGenerator(gen ident.Generator) EngineOption {
	return func(e *Engine) {
		e.flowGen = gen
	}
}

// New creates an Engine with an empty registry.
func New(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		logger:      slog.Default(),
		flowGen:     ident.UUIDv7{},
		maxSteps:    DefaultMaxSteps,
		concurrency: DefaultStageConcurrency,
		cycles:      NewCycleDetector(),
		defs:        make(map[string]*registration),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.concurrency < 1 {
		e.concurrency = DefaultStageConcurrency
	}
	if e.maxSteps < 1 {
		return nil, fmt.Errorf("max steps must be positive, got %d", e.maxSteps)
	}

	m, err := NewMetrics(e.provider)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	e.metrics = m

	return e, nil
}

// Close deregisters every definition. Target documents are left in place.
func (e *Engine) Close() error {
	e.mu.Lock()
	regs := make([]*registration, 0, len(e.order))
	for _, id := range e.order {
		regs = append(regs, e.defs[id])
	}
	e.defs = make(map[string]*registration)
	e.order = nil
	e.mu.Unlock()

	for _, reg := range regs {
		reg.teardown()
	}
	e.logger.Debug("engine closed", "definitions", len(regs))
	return nil
}
