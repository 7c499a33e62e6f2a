package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans and instruments emitted by dubber.
const InstrumentationName = "dubber"

// Attribute keys shared by spans and metric points.
const (
	AttrStage   = attribute.Key("dubber.stage")
	AttrJobID   = attribute.Key("dubber.job.id")
	AttrOutcome = attribute.Key("dubber.outcome")
	AttrKind    = attribute.Key("dubber.change.kind")
)

// Tracer starts spans around stage runs and feed polls.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer from tp. A nil provider uses the global one.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// StartSpan starts a span with the given attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartStage starts the span covering one stage invocation for a job.
func (t *Tracer) StartStage(ctx context.Context, stage, jobID string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "dubber.stage."+stage,
		AttrStage.String(stage),
		AttrJobID.String(jobID),
	)
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
