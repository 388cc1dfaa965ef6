package tracing

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is used when tracing.service_name is empty.
const DefaultServiceName = "shopagent"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the global tracer provider for the shopping agent.
// Later calls are no-ops until ShutdownOpenTelemetry runs.
func InitOpenTelemetry(serviceName string, opts ...sdktrace.TracerProviderOption) error {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return nil
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	}, opts...)...)
	otel.SetTracerProvider(provider)
	return nil
}

// ShutdownOpenTelemetry flushes pending spans and forgets the provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts spanName on tp, or on the global provider when tp is nil.
// The run, merchant and protocol carried by ctx become span attributes, and
// the span's trace id is stored in ctx when none is set yet.
func StartSpan(ctx context.Context, tp trace.TracerProvider, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	tc := FromContext(ctx)
	if tc.RunID != "" {
		attrs = append(attrs, attribute.String("shopagent.run_id", tc.RunID))
	}
	if tc.Merchant != "" {
		attrs = append(attrs, attribute.String("shopagent.merchant", tc.Merchant))
	}
	if tc.Protocol != "" {
		attrs = append(attrs, attribute.String("shopagent.protocol", tc.Protocol))
	}

	ctx, span := tp.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if tc.TraceID == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// RecordError marks span as failed. Cancellation is recorded as an event only.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		span.AddEvent("canceled")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
