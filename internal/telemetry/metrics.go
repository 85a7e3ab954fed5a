// Package telemetry defines the OpenTelemetry instruments recorded by the pipeline.
// Instruments are created from a metric.Meter; with no SDK installed the global
// meter is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every instrument.
const MeterName = "github.com/custodia-labs/autorfp"

// Outcomes recorded on step durations.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	invocations  metric.Int64Counter
	retries      metric.Int64Counter
	fallbacks    metric.Int64Counter
	stepDuration metric.Float64Histogram
	coverage     metric.Float64Histogram
	cacheLookups metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	invocations, err := meter.Int64Counter("autorfp.agent.invocations",
		metric.WithDescription("Model invocations made by agents"))
	if err != nil {
		return nil, fmt.Errorf("create invocations counter: %w", err)
	}
	retries, err := meter.Int64Counter("autorfp.agent.retries",
		metric.WithDescription("Model invocations retried after a failure"))
	if err != nil {
		return nil, fmt.Errorf("create retries counter: %w", err)
	}
	fallbacks, err := meter.Int64Counter("autorfp.agent.fallbacks",
		metric.WithDescription("Agent outputs recovered by pattern fallback"))
	if err != nil {
		return nil, fmt.Errorf("create fallbacks counter: %w", err)
	}
	stepDuration, err := meter.Float64Histogram("autorfp.workflow.step.duration",
		metric.WithDescription("Pipeline step duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create step duration histogram: %w", err)
	}
	coverage, err := meter.Float64Histogram("autorfp.answers.coverage",
		metric.WithDescription("Answered share of clarification questions"),
		metric.WithUnit("%"))
	if err != nil {
		return nil, fmt.Errorf("create coverage histogram: %w", err)
	}
	cacheLookups, err := meter.Int64Counter("autorfp.cache.lookups",
		metric.WithDescription("Repository cache lookups by entity and result"))
	if err != nil {
		return nil, fmt.Errorf("create cache lookups counter: %w", err)
	}

	return &Metrics{
		invocations:  invocations,
		retries:      retries,
		fallbacks:    fallbacks,
		stepDuration: stepDuration,
		coverage:     coverage,
		cacheLookups: cacheLookups,
	}, nil
}

// Global creates the instruments on the global meter provider.
func Global() *Metrics {
	m, err := New(otel.Meter(MeterName))
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return m
}

// Invocation records one model call by agent.
func (m *Metrics) Invocation(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// Retry records one retried model call by agent.
func (m *Metrics) Retry(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// Fallback records one pattern-recovered agent output.
func (m *Metrics) Fallback(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// StepDuration records how long a pipeline step ran and how it ended.
func (m *Metrics) StepDuration(ctx context.Context, step string, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

// Coverage records the answered percentage of one answer set.
func (m *Metrics) Coverage(ctx context.Context, pct float64) {
	if m == nil {
		return
	}
	m.coverage.Record(ctx, pct)
}

// CacheLookup records one cache read for entity.
func (m *Metrics) CacheLookup(ctx context.Context, entity string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("result", result),
	))
}
