// Package observability records OpenTelemetry spans and metrics for pipeline
// runs. Both use the global providers unless one is passed explicitly, so
// they cost nothing until the embedding program installs an SDK.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/flowsketch/pkg/schema"
)

const instrumentationName = "github.com/rendis/flowsketch"

// SpanManager handles span lifecycle for runs and their stages.
type SpanManager interface {
	// StartRunSpan starts the root span of one pipeline run.
	StartRunSpan(ctx context.Context, runID, source string) (context.Context, trace.Span)
	// StartStageSpan starts a child span for extract, infer, describe or render.
	StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span)
	// EndSpan records err, if any, and ends span.
	EndSpan(span trace.Span, err error)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns an OpenTelemetry SpanManager. A nil provider uses
// the global one.
func NewSpanManager(tp trace.TracerProvider) SpanManager {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: tp.Tracer(instrumentationName)}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, runID, source string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "flowsketch.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.source", source),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "flowsketch.stage."+stage,
		trace.WithAttributes(attribute.String("stage", stage)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := schema.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error.code", code))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
