package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for one orchestrator run
	RunIDKey ContextKey = "run_id"
	// MerchantKey is the context key for the merchant domain being shopped
	MerchantKey ContextKey = "merchant"
	// ProtocolKey is the context key for the bound commerce protocol
	ProtocolKey ContextKey = "protocol"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID  string
	RunID    string
	Merchant string
	Protocol string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithMerchant adds the merchant domain to the context
func WithMerchant(ctx context.Context, merchant string) context.Context {
	return context.WithValue(ctx, MerchantKey, merchant)
}

// WithProtocol adds the bound protocol to the context
func WithProtocol(ctx context.Context, protocol string) context.Context {
	return context.WithValue(ctx, ProtocolKey, protocol)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

// GetMerchant retrieves the merchant domain from the context
func GetMerchant(ctx context.Context) string { return stringValue(ctx, MerchantKey) }

// GetProtocol retrieves the bound protocol from the context
func GetProtocol(ctx context.Context) string { return stringValue(ctx, ProtocolKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:  GetTraceID(ctx),
		RunID:    GetRunID(ctx),
		Merchant: GetMerchant(ctx),
		Protocol: GetProtocol(ctx),
	}
}

// NewRunContext creates a context for one orchestrator run. An existing trace ID is kept.
func NewRunContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithRunID(ctx, NewRunID())
}

// LoggerFromContext adds the tracing fields present in ctx to a zerolog logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		lc = lc.Str("run_id", tc.RunID)
	}
	if tc.Merchant != "" {
		lc = lc.Str("merchant", tc.Merchant)
	}
	if tc.Protocol != "" {
		lc = lc.Str("protocol", tc.Protocol)
	}
	return lc.Logger()
}
