package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer returns a Tracer that records nothing.
func NewNoopTracer() *Tracer {
	return NewTracer(tracenoop.NewTracerProvider())
}

// NewNoopMetrics returns Metrics backed by no-op instruments.
func NewNoopMetrics() *Metrics {
	return NewMetrics(noop.NewMeterProvider())
}
