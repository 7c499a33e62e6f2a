package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Stage outcomes recorded on metric points.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the instruments recorded by the pipeline and dispatcher.
type Metrics struct {
	stageRuns       metric.Int64Counter
	stageFailures   metric.Int64Counter
	stageDuration   metric.Float64Histogram
	changesDispatch metric.Int64Counter
}

// NewMetrics creates instruments from mp. A nil provider uses the global one.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)
	m := &Metrics{}

	var err error
	m.stageRuns, err = meter.Int64Counter("dubber.stage.runs",
		metric.WithDescription("Stage invocations by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.stageRuns, _ = meter.Int64Counter("dubber.stage.runs")
	}

	m.stageFailures, err = meter.Int64Counter("dubber.stage.failures",
		metric.WithDescription("Stage invocations that persisted a failure"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		m.stageFailures, _ = meter.Int64Counter("dubber.stage.failures")
	}

	m.stageDuration, err = meter.Float64Histogram("dubber.stage.duration",
		metric.WithDescription("Stage processing time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.stageDuration, _ = meter.Float64Histogram("dubber.stage.duration")
	}

	m.changesDispatch, err = meter.Int64Counter("dubber.changes.dispatched",
		metric.WithDescription("Change events handed to stages"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		m.changesDispatch, _ = meter.Int64Counter("dubber.changes.dispatched")
	}
	return m
}

// RecordStageRun records one stage invocation.
func (m *Metrics) RecordStageRun(ctx context.Context, stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrStage.String(stage), AttrOutcome.String(outcome))
	if m.stageRuns != nil {
		m.stageRuns.Add(ctx, 1, attrs)
	}
	if outcome == OutcomeFailed && m.stageFailures != nil {
		m.stageFailures.Add(ctx, 1, metric.WithAttributes(AttrStage.String(stage)))
	}
	if m.stageDuration != nil {
		m.stageDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	}
}

// RecordDispatch counts a change event handed to the stage set.
func (m *Metrics) RecordDispatch(ctx context.Context, kind string) {
	if m == nil || m.changesDispatch == nil {
		return
	}
	m.changesDispatch.Add(ctx, 1, metric.WithAttributes(AttrKind.String(kind)))
}
