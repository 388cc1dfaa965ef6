package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewRunContext(t *testing.T) {
	t.Run("should create trace and run ids", func(t *testing.T) {
		ctx := NewRunContext(context.Background())

		assert.NotEmpty(t, GetTraceID(ctx))
		assert.NotEmpty(t, GetRunID(ctx))
	})

	t.Run("should keep an existing trace id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-1")
		ctx = NewRunContext(ctx)

		assert.Equal(t, "trace-1", GetTraceID(ctx))
	})

	t.Run("should produce distinct run ids", func(t *testing.T) {
		a := GetRunID(NewRunContext(context.Background()))
		b := GetRunID(NewRunContext(context.Background()))
		assert.NotEqual(t, a, b)
	})
}

func TestFromContext(t *testing.T) {
	ctx := WithMerchant(context.Background(), "shop.test")
	ctx = WithProtocol(ctx, "ucp")
	ctx = WithRunID(ctx, "run-1")

	tc := FromContext(ctx)
	assert.Equal(t, "shop.test", tc.Merchant)
	assert.Equal(t, "ucp", tc.Protocol)
	assert.Equal(t, "run-1", tc.RunID)
	assert.Empty(t, tc.TraceID)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRunID(WithTraceID(context.Background(), "trace-1"), "run-1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"trace_id":"trace-1"`)
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.NotContains(t, buf.String(), "merchant")
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := StartSpan(context.Background(), tp, "shopagent.test", "unit")
	assert.NotEmpty(t, GetTraceID(ctx))
	RecordError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "unit", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestStartSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx := WithProtocol(WithMerchant(WithRunID(context.Background(), "run-7"), "shop.test"), "acp")
	_, span := StartSpan(ctx, tp, "shopagent.test", "checkout")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	got := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "run-7", got["shopagent.run_id"])
	assert.Equal(t, "shop.test", got["shopagent.merchant"])
	assert.Equal(t, "acp", got["shopagent.protocol"])
}

func TestRecordErrorCanceled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), tp, "shopagent.test", "unit")
	RecordError(span, context.Canceled)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "canceled", ended[0].Events()[0].Name)
}

func TestInitOpenTelemetry(t *testing.T) {
	require.NoError(t, InitOpenTelemetry(""))
	require.NoError(t, InitOpenTelemetry("ignored"))
	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
