// Package tracer wires OpenTelemetry and offers the span helpers used across
// the orchestrator, the model client, tools and the calendar adapter.
package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"secretary-ai/internal/infra/config"
)

const (
	tracerName  = "secretary-ai"
	serviceName = "secretary"
)

// Option customizes Setup.
type Option func(*setupOptions)

type setupOptions struct {
	exporter sdktrace.SpanExporter
	syncSend bool
}

// WithExporter replaces the configured exporter. Spans are exported
// synchronously so callers can inspect them right after End.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *setupOptions) {
		o.exporter = exp
		o.syncSend = true
	}
}

// Setup installs the global TracerProvider and returns its shutdown function.
// Disabled tracing, or the "noop" exporter, installs a noop provider.
func Setup(ctx context.Context, cfg config.TracerConfig, opts ...Option) (func(context.Context) error, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	noopShutdown := func(context.Context) error { return nil }

	exporter := o.exporter
	if exporter == nil {
		if !cfg.Enabled {
			otel.SetTracerProvider(noop.NewTracerProvider())
			return noopShutdown, nil
		}
		w, err := exporterWriter(cfg.Exporter)
		if err != nil {
			return nil, err
		}
		if w == nil {
			otel.SetTracerProvider(noop.NewTracerProvider())
			return noopShutdown, nil
		}
		stdOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
		if cfg.Exporter == "stdout" {
			stdOpts = append(stdOpts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(stdOpts...)
		if err != nil {
			return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
		}
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracer resource: %w", err)
	}

	spanOpt := sdktrace.WithBatcher(exporter)
	if o.syncSend {
		spanOpt = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		spanOpt,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// exporterWriter maps an exporter name to its destination. A nil writer means
// spans are discarded.
func exporterWriter(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "noop", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", name)
	}
}

// sampler keeps every trace at ratio >= 1 and otherwise samples root spans
// by trace ID, following the parent's decision for child spans.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartSpan starts a named span on the service tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK sets the span status to OK.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

func BoolAttr(key string, value bool) attribute.KeyValue {
	return attribute.Bool(key, value)
}
