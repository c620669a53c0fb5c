// Package tracing wires an OpenTelemetry tracer provider for the engine:
// one span per Instance execution, one span per workflow DFS node.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/OCR4all/ocr4all-app-sub002/engine"

// NewStdoutProvider builds a TracerProvider that writes spans to w, useful
// for local debugging of the instance and workflow DFS execution paths
// without standing up a collector.
func NewStdoutProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return tp, nil
}

// NewNoopProvider returns the global no-op tracer provider, used when
// tracing is not configured.
func NewNoopProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

// Tracer returns the engine's named tracer from the given provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Shutdown flushes and shuts down a TracerProvider created by this package.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
