package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_RunAndStep(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithStep(ctx, Step{Position: 3, ToolID: "contrast_report"})

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range ContextFields(ctx) {
		f.AddTo(enc)
	}

	assert.Equal(t, "run-42", enc.Fields["run.id"])
	assert.Equal(t, int64(3), enc.Fields["step.position"])
	assert.Equal(t, "contrast_report", enc.Fields["step.tool"])
}

func TestContextFields_Trace(t *testing.T) {
	tp := trace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tl := NewTestLogger()
	tl.Info(ctx, "traced")

	entries := tl.FilterMessage("traced").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestStepFromContext_Missing(t *testing.T) {
	_, ok := StepFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, RunIDFromContext(context.Background()))
}

func TestFromContext(t *testing.T) {
	t.Run("returns stored logger", func(t *testing.T) {
		tl := NewTestLogger()
		ctx := WithLogger(context.Background(), tl.Logger)

		FromContext(ctx).Info(ctx, "via context")

		tl.AssertLogged(t, zapcore.InfoLevel, "via context")
	})

	t.Run("falls back to nop", func(t *testing.T) {
		logger := FromContext(context.Background())
		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(zapcore.InfoLevel))
	})
}

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRunID(context.Background(), "r1")

	tl.Warn(ctx, "retrying step")
	tl.Warn(ctx, "retrying step")

	assert.Equal(t, 2, tl.Count(zapcore.WarnLevel, "retrying"))
	tl.AssertLogged(t, zapcore.WarnLevel, "retrying")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "retrying")
	tl.AssertField(t, "retrying step", "run.id", "r1")

	tl.Reset()
	assert.Empty(t, tl.All())
}
