package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Checkout audit actions
const (
	AuditSessionCreated = "session_created"
	AuditOrderPlaced    = "order_placed"
	AuditPaymentFailed  = "payment_failed"
)

// CheckoutEvent is one line of the checkout audit trail.
type CheckoutEvent struct {
	Action    string
	RunID     string
	Protocol  string
	Merchant  string
	SessionID string
	OrderID   string
	Total     string
	Currency  string
	Err       error
	Time      time.Time
}

// Failed reports whether the event records a failure
func (e CheckoutEvent) Failed() bool { return e.Err != nil }

// AuditLogger appends checkout events as JSON lines
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// NewAuditLogger creates an audit logger writing to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: zerolog.New(w)}
}

// GetAuditLogger returns the process audit logger. Events are discarded
// until InitAuditLogger points it at a file.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = NewAuditLogger(io.Discard)
	}
	return auditInst
}

// InitAuditLogger replaces the process audit logger with one appending to path
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	a := NewAuditLogger(file)
	a.file = file

	auditMu.Lock()
	prev := auditInst
	auditInst = a
	auditMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record writes e and mirrors it as an event on the active span
func (a *AuditLogger) Record(ctx context.Context, e CheckoutEvent) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	status := "success"
	if e.Failed() {
		status = "failure"
	}

	var traceID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+e.Action, trace.WithAttributes(
			attribute.String("checkout.status", status),
			attribute.String("checkout.session_id", e.SessionID),
			attribute.String("checkout.order_id", e.OrderID),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("time", e.Time).
		Str("action", e.Action).
		Str("status", status).
		Str("run_id", e.RunID).
		Str("protocol", e.Protocol).
		Str("merchant", e.Merchant).
		Str("session_id", e.SessionID)
	if e.OrderID != "" {
		entry = entry.Str("order_id", e.OrderID).Str("total", e.Total).Str("currency", e.Currency)
	}
	if e.Err != nil {
		entry = entry.Str("error", e.Err.Error())
	}
	if traceID != "" {
		entry = entry.Str("trace_id", traceID)
	}
	entry.Send()
}

// Close closes the audit file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// RecordCheckout records e on the process audit logger
func RecordCheckout(ctx context.Context, e CheckoutEvent) {
	GetAuditLogger().Record(ctx, e)
}
