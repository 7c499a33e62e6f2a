// Package observability wraps OpenTelemetry tracing and metrics for the
// pipeline.
//
// NewProviders builds the SDK tracer and meter providers the daemon installs,
// exporting to stdout or OTLP over HTTP per the [telemetry] section. Tracer
// and Metrics take provider interfaces, so tests can hand in recorders and
// the CLI can use the no-op variants.
package observability
