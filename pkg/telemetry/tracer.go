// Package telemetry provides OpenTelemetry tracing for webfleet.
// Tracing is disabled by default and turns on when an OTLP endpoint is
// configured or debug tracing is requested.
package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	initOnce       sync.Once
	enabled        bool
)

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is the collector endpoint, e.g. localhost:4317.
	OTLPEndpoint string
	// Debug sends pretty-printed spans to stdout instead.
	Debug bool
}

// DefaultConfig reads telemetry settings from the environment.
func DefaultConfig(version string) Config {
	return Config{
		ServiceName:    "webfleet",
		ServiceVersion: version,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Debug:          os.Getenv("WEBFLEET_TRACE_DEBUG") == "1",
	}
}

// Init sets up the tracer provider once. Without an endpoint or debug
// flag the tracer is a noop.
func Init(cfg Config) error {
	var err error
	initOnce.Do(func() {
		err = initTracer(cfg)
	})
	return err
}

func initTracer(cfg Config) error {
	if cfg.OTLPEndpoint == "" && !cfg.Debug {
		tracer = noop.NewTracerProvider().Tracer(cfg.ServiceName)
		enabled = false
		return nil
	}
	enabled = true

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var exporter sdktrace.SpanExporter
	if cfg.Debug {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return err
		}
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(cfg.ServiceName)
	return nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// IsEnabled reports whether spans are being exported.
func IsEnabled() bool { return enabled }

// Tracer returns the process tracer.
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("webfleet")
	}
	return tracer
}

// StartSpan starts a span with the given name.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TraceStage starts a span for one deployment pipeline stage.
func TraceStage(ctx context.Context, stage, domain string) (context.Context, trace.Span) {
	return StartSpan(ctx, "deploy.stage",
		trace.WithAttributes(
			attribute.String("deploy.stage", stage),
			attribute.String("deploy.domain", domain),
		),
	)
}

// TraceDeploy starts a span covering a whole deployment.
func TraceDeploy(ctx context.Context, domain, appType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "deploy.app",
		trace.WithAttributes(
			attribute.String("deploy.domain", domain),
			attribute.String("deploy.app_type", appType),
		),
	)
}

// RecordError records err on the span in ctx.
func RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span != nil {
		span.RecordError(err)
	}
}
