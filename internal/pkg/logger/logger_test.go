package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(Config{Service: "t", Level: "loud"}))
}

func TestCtx_WithoutSpan(t *testing.T) {
	assert.NotNil(t, Ctx(context.Background()))
	assert.NotNil(t, Ctx(nil)) //nolint:staticcheck
}

func TestCtx_WithSpan(t *testing.T) {
	require.NoError(t, Init(Config{Service: "t", Level: "debug"}))
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("t").Start(context.Background(), "op")
	defer span.End()

	l := Ctx(ctx)
	assert.NotNil(t, l)
	assert.Equal(t, "debug", l.GetLevel().String())
}
