package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(Options{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansAreWritten(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(Options{Enabled: true, Writer: &buf, Version: "test", RunID: "run-1"})
	require.NoError(t, err)

	_, span := otel.Tracer("gcg.test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name":"unit"`)
	assert.Contains(t, out, "run-1")
}
