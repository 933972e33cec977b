package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled(t *testing.T) {
	require.NoError(t, Init(context.Background(), &Config{ServiceName: "boost-test"}))

	ctx, span := StartSpan(context.Background(), "service.boost.cancel")
	defer span.End()

	assert.Empty(t, TraceID(ctx), "disabled tracing records nothing")
	assert.NoError(t, Shutdown(context.Background()))
}

func TestTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("boost-test").Start(context.Background(), "reconcile")
	defer span.End()

	assert.Len(t, TraceID(ctx), 32)
	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
