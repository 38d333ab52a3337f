package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsMeterName is the name used for the engine meter.
const MetricsMeterName = "github.com/roach88/viewsync/engine"

// Metrics holds the OpenTelemetry instruments for the engine.
// A nil *Metrics records nothing.
type Metrics struct {
	documents       metric.Int64Counter
	computeDuration metric.Float64Histogram
	flowSteps       metric.Int64Histogram
}

// NewMetrics creates the engine instruments with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MetricsMeterName)

	documents, err := meter.Int64Counter(
		"viewsync_documents_total",
		metric.WithDescription("Documents synchronized, by definition and outcome"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	computeDuration, err := meter.Float64Histogram(
		"viewsync_compute_duration_seconds",
		metric.WithDescription("Duration of the two-stage field computation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	flowSteps, err := meter.Int64Histogram(
		"viewsync_flow_steps",
		metric.WithDescription("Recomputes performed per flow"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documents:       documents,
		computeDuration: computeDuration,
		flowSteps:       flowSteps,
	}, nil
}

// RecordDocument counts one synchronized document.
func (m *Metrics) RecordDocument(ctx context.Context, definitionID, outcome string) {
	if m == nil || m.documents == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("definition", definitionID),
		attribute.String("outcome", outcome),
	}
	m.documents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCompute records the duration of one pipeline run.
func (m *Metrics) RecordCompute(ctx context.Context, definitionID string, duration time.Duration, success bool) {
	if m == nil || m.computeDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("definition", definitionID),
		attribute.Bool("success", success),
	}
	m.computeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFlow records how many recomputes a finished flow performed.
func (m *Metrics) RecordFlow(ctx context.Context, steps int, success bool) {
	if m == nil || m.flowSteps == nil {
		return
	}

	m.flowSteps.Record(ctx, int64(steps), metric.WithAttributes(attribute.Bool("success", success)))
}
