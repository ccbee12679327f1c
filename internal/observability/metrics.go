package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rendis/flowsketch/pkg/schema"
)

// MetricsRecorder records pipeline metrics.
type MetricsRecorder interface {
	// RecordStage records one stage execution with its duration and outcome.
	RecordStage(ctx context.Context, stage string, duration time.Duration, err error)
	// RecordRun records a finished run. degraded marks runs that drew an error graph.
	RecordRun(ctx context.Context, kind string, degraded bool, duration time.Duration, err error)
}

type otelMetrics struct {
	stageLatency metric.Float64Histogram
	stageErrors  metric.Int64Counter
	runs         metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// NewMetricsRecorder returns an OpenTelemetry MetricsRecorder. A nil
// provider uses the global one.
func NewMetricsRecorder(mp metric.MeterProvider) (MetricsRecorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	stageLatency, err := meter.Float64Histogram("flowsketch.stage.latency_ms",
		metric.WithDescription("Pipeline stage latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter("flowsketch.stage.errors",
		metric.WithDescription("Number of failed pipeline stages"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("flowsketch.runs",
		metric.WithDescription("Number of pipeline runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("flowsketch.run.latency_ms",
		metric.WithDescription("Pipeline run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageLatency: stageLatency,
		stageErrors:  stageErrors,
		runs:         runs,
		runLatency:   runLatency,
	}, nil
}

func (m *otelMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("code", schema.CodeOf(err)),
		))
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, kind string, degraded bool, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("degraded", degraded),
		attribute.Bool("success", err == nil),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}
