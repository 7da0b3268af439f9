package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages the lifecycle of the OpenTelemetry tracer.
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// TaskTracer wraps spans around playbook task executions.
type TaskTracer struct {
	tracer trace.Tracer
}

// NewTracerProvider creates an OTLP-exporting tracer provider. Pass an
// empty endpoint to skip tracing setup entirely.
func NewTracerProvider(serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("sourcekit"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes any queued spans.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

// NewTaskTracer returns a tracer for the task-dispatch path. Works with the
// global provider, so it is usable even when tracing is not configured.
func NewTaskTracer() *TaskTracer {
	return &TaskTracer{tracer: otel.Tracer("sourcekit/dispatch")}
}

// StartTaskSpan opens a span for a single task execution.
func (t *TaskTracer) StartTaskSpan(ctx context.Context, source, taskType, connectorName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("sourcekit.source", source),
			attribute.String("sourcekit.task_type", taskType),
			attribute.String("sourcekit.connector", connectorName),
		),
	)
}

// EndTaskSpan records the outcome and closes the span.
func (t *TaskTracer) EndTaskSpan(span trace.Span, resultCount int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("sourcekit.result_count", resultCount))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
