// Package observability provides OpenTelemetry integration for distributed tracing.
//
// Spans recorded by Genkit around every model call (generate, embed) are
// exported over OTLP/HTTP to a local collector. Any OTLP-capable backend
// works: an OpenTelemetry Collector, Jaeger with OTLP ingestion enabled,
// or a vendor agent listening on the standard OTLP port.
//
// # Configuration
//
// Environment variables (optional):
//   - OTEL_EXPORTER_OTLP_ENDPOINT: Override collector endpoint
//   - DOCKET_TRACING_ENABLED: Turn trace export on
//
// Config file (~/.docket/config.yaml):
//
//	tracing:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  service_name: "docket"
//	  environment: "dev"
//
// # Verify the pipeline
//
// After running docket with tracing enabled, an init span named
// "docket.init" is emitted immediately; if it does not show up in the
// backend within a minute, check the collector's OTLP HTTP receiver:
//
//	curl -v http://localhost:4318/v1/traces
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the collector's OTLP HTTP endpoint (default: localhost:4318)
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// ServiceName is the service name attached to exported spans
	ServiceName string
}

// DefaultEndpoint is the standard local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup registers an OTLP span exporter with Genkit's TracerProvider.
// Traces are sent to the collector via OTLP HTTP protocol.
//
// Returns a shutdown function that flushes pending spans. Setup never
// blocks startup: if the exporter cannot be created, tracing is disabled
// and the returned shutdown is a no-op.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Set OTEL_SERVICE_NAME for Genkit's TracerProvider to pick up
	// so the service name appears correctly in the tracing backend
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // localhost doesn't need TLS
	)
	if err != nil {
		slog.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	// Register BatchSpanProcessor with Genkit's TracerProvider
	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	// Create a test span to verify the pipeline works
	tracer := tracing.TracerProvider().Tracer("docket-init")
	_, span := tracer.Start(ctx, "docket.init")
	span.End()

	// Shut down only the processor registered here; the provider itself
	// stays usable for Genkit's own instrumentation.
	return processor.Shutdown, nil
}
