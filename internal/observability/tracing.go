package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cohort-dashboard"

// NewTracerProvider builds an SDK tracer provider that samples every span,
// so request contexts always carry trace and span IDs. When w is non-nil,
// finished spans are also written to it as JSON.
func NewTracerProvider(w io.Writer, version string) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", tracerName),
			attribute.String("service.version", version),
		)),
	}

	if w != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create span exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// InstallTracerProvider makes tp the global provider used by StartSpan.
func InstallTracerProvider(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

// StartSpan starts a span on the global tracer provider. Without an SDK
// installed the span is a no-op but still carries context.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, operation, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
