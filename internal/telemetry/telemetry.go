// Package telemetry installs the OpenTelemetry tracer provider used by the
// analysis spans. Spans are exported to a writer, usually stderr, when
// tracing is enabled; otherwise the global no-op provider stays in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Options configures Setup.
type Options struct {
	Enabled bool
	// Writer receives one JSON document per span. Defaults to os.Stderr.
	Writer      io.Writer
	ServiceName string
	Version     string
	// RunID is attached to every span as gcg.run_id.
	RunID string
}

// Setup installs a global tracer provider. The returned function must be
// called before exit to flush pending spans; it is safe to call when
// tracing is disabled.
func Setup(opts Options) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "gcg"
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.version", opts.Version),
	}
	if opts.RunID != "" {
		attrs = append(attrs, attribute.String("gcg.run_id", opts.RunID))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
