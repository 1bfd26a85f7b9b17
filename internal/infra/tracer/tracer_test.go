package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"secretary-ai/internal/infra/config"
)

func TestSetupInstallsNoopProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracerConfig
	}{
		{"disabled", config.TracerConfig{Enabled: false, Exporter: "stdout"}},
		{"noop exporter", config.TracerConfig{Enabled: true, Exporter: "noop"}},
		{"empty exporter", config.TracerConfig{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg)
			require.NoError(t, err)
			defer shutdown(context.Background())

			_, ok := otel.GetTracerProvider().(noop.TracerProvider)
			assert.True(t, ok, "got %T", otel.GetTracerProvider())
		})
	}
}

func TestSetupWriterExporters(t *testing.T) {
	for _, exp := range []string{"stdout", "stderr"} {
		t.Run(exp, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp, SampleRatio: 1})
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}

func TestSpansReachExporter(t *testing.T) {
	rec := tracetest.NewInMemoryExporter()
	shutdown, err := Setup(context.Background(), config.TracerConfig{SampleRatio: 1}, WithExporter(rec))
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, turn := StartSpan(context.Background(), "orchestrator.turn")
	SetOK(turn)
	turn.SetAttributes(StringAttr("user", "u1"), IntAttr("tools", 2), BoolAttr("simulated", true))
	turn.End()

	_, failed := StartSpan(context.Background(), "llm.openai.chat")
	RecordError(failed, errors.New("boom"))
	failed.End()

	spans := rec.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "orchestrator.turn", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Len(t, spans[0].Attributes, 3)
	assert.Equal(t, "llm.openai.chat", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "boom", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1, "error recorded as an event")

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, serviceName, service)
}

func TestZeroSampleRatioDropsRootSpans(t *testing.T) {
	rec := tracetest.NewInMemoryExporter()
	shutdown, err := Setup(context.Background(), config.TracerConfig{SampleRatio: 0}, WithExporter(rec))
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "dropped")
	span.End()
	assert.Empty(t, rec.GetSpans())
}
