package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dubber/internal/config"
)

// Exporter names accepted by telemetry.exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ProviderOptions configures NewProviders.
type ProviderOptions struct {
	Exporter       string
	OTLPEndpoint   string
	MetricInterval time.Duration
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
	// SpanProcessors and Readers are installed alongside the exporter.
	SpanProcessors []sdktrace.SpanProcessor
	Readers        []sdkmetric.Reader
}

// Providers owns the SDK tracer and meter providers for a process.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// ProviderOptionsFromConfig maps the [telemetry] section.
func ProviderOptionsFromConfig(cfg *config.Config) ProviderOptions {
	if cfg == nil {
		return ProviderOptions{Exporter: ExporterNone}
	}
	return ProviderOptions{
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		MetricInterval: time.Duration(cfg.Telemetry.MetricIntervalSeconds) * time.Second,
	}
}

// NewProviders builds tracer and meter providers that export according to
// opts. With ExporterNone spans and points are still recorded and handed to
// any extra processors or readers, but nothing leaves the process.
func NewProviders(ctx context.Context, opts ProviderOptions) (*Providers, error) {
	exporter := strings.ToLower(strings.TrimSpace(opts.Exporter))
	if exporter == "" {
		exporter = ExporterNone
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}

	res := resource.NewSchemaless(attribute.String("service.name", InstrumentationName))
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch exporter {
	case ExporterNone:
	case ExporterStdout:
		spanExp, err := stdouttrace.New(stdouttrace.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExp))
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))))
	case ExporterOTLP:
		var spanOpts []otlptracehttp.Option
		var pointOpts []otlpmetrichttp.Option
		if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
			spanOpts = append(spanOpts, otlptracehttp.WithEndpointURL(endpoint))
			pointOpts = append(pointOpts, otlpmetrichttp.WithEndpointURL(endpoint))
		}
		spanExp, err := otlptracehttp.New(ctx, spanOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, pointOpts...)
		if err != nil {
			_ = spanExp.Shutdown(ctx)
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExp))
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))))
	default:
		return nil, fmt.Errorf("telemetry exporter: unsupported value %q", opts.Exporter)
	}

	for _, sp := range opts.SpanProcessors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
	}
	for _, reader := range opts.Readers {
		metricOpts = append(metricOpts, sdkmetric.WithReader(reader))
	}

	return &Providers{
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		MeterProvider:  sdkmetric.NewMeterProvider(metricOpts...),
	}, nil
}

// Tracer returns a Tracer over the SDK tracer provider.
func (p *Providers) Tracer() *Tracer {
	if p == nil || p.TracerProvider == nil {
		return NewNoopTracer()
	}
	return NewTracer(p.TracerProvider)
}

// Metrics returns instruments over the SDK meter provider.
func (p *Providers) Metrics() *Metrics {
	if p == nil || p.MeterProvider == nil {
		return NewNoopMetrics()
	}
	return NewMetrics(p.MeterProvider)
}

// Shutdown flushes pending spans and points, then stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
