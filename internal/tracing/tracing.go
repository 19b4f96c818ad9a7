// Package tracing sets up the OpenTelemetry OTLP exporter peterbot uses to
// trace job execution. Grounded on the teacher's internal/tracing/otelexport
// exporter.go for the OTLP protocol/endpoint/resource configuration shape;
// the teacher's Collector/SpanExporter buffering layer (batching many
// sub-spans per agent run — LLM calls, tool calls — for a Postgres spans
// table) has no analog here, since a job has exactly one execution span
// with nothing to batch, so it is not carried over (see DESIGN.md).
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OTLP exporter. An empty Endpoint disables tracing
// entirely: Init then registers nothing, leaving otel's default no-op
// TracerProvider in place, and the returned shutdown func is a no-op, so
// callers never need a feature flag.
type Config struct {
	Endpoint string
	Protocol string // "grpc" (default) or "http"
	Insecure bool
}

// Init registers a global TracerProvider per cfg and returns a shutdown
// func to flush and close it. Call once at startup; peterbot's own code
// just calls otel.Tracer("peterbot") wherever it wants a span.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("peterbot")))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartJobSpan starts the single span that covers one job's execution
// (claim through deliver), the unit of tracing peterbot actually has.
func StartJobSpan(ctx context.Context, jobID, jobType string) (context.Context, trace.Span) {
	return otel.Tracer("peterbot").Start(ctx, "job.execute", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.type", jobType),
	))
}
