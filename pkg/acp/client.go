package acp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
)

const (
	// DefaultAPIVersion is sent in the API-Version header
	DefaultAPIVersion = "2025-09-29"

	tracerName       = "github.com/harun/shopagent/pkg/acp"
	defaultUserAgent = "shopagent-acp/1.0"
	defaultTimeout   = 30 * time.Second
)

// Client talks to one checkout-session merchant endpoint
type Client struct {
	endpoint       string
	apiKey         string
	apiVersion     string
	userAgent      string
	timeout        time.Duration
	httpClient     *http.Client
	logger         zerolog.Logger
	tracerProvider trace.TracerProvider

	mu       sync.Mutex
	statuses map[string]Status
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAPIVersion overrides the API-Version header
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTracerProvider sets the tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracerProvider = tp }
}

// NewClient creates a client for endpoint authenticated with apiKey
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: DefaultAPIVersion,
		userAgent:  defaultUserAgent,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
		statuses:   make(map[string]Status),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the merchant endpoint
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Status returns the last status seen for session id
func (c *Client) Status(id string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[id]
	return s, ok
}

// CreateSession calls POST /checkout_sessions
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout_sessions", req, &out); err != nil {
		return nil, err
	}
	c.mirror(&out)
	return &out, nil
}

// GetSession calls GET /checkout_sessions/{id}
func (c *Client) GetSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &out); err != nil {
		return nil, err
	}
	c.mirror(&out)
	return &out, nil
}

// UpdateSession calls POST /checkout_sessions/{id}
func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) (*CheckoutSession, error) {
	if err := c.guard(id, ActionUpdate); err != nil {
		return nil, err
	}
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, sessionPath(id), req, &out); err != nil {
		return nil, err
	}
	c.mirror(&out)
	return &out, nil
}

// CompleteSession calls POST /checkout_sessions/{id}/complete. A declined payment
// returns the session together with ErrPaymentDeclined.
func (c *Client) CompleteSession(ctx context.Context, id string, req CompleteSessionRequest) (*CheckoutSession, error) {
	if err := c.guard(id, ActionComplete); err != nil {
		return nil, err
	}
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, sessionPath(id)+"/complete", req, &out); err != nil {
		return nil, err
	}
	c.mirror(&out)

	if out.Status != StatusCompleted {
		msg := out.ErrorMessage()
		if msg == "" {
			msg = fmt.Sprintf("session returned in status %s", out.Status)
		}
		return &out, fmt.Errorf("%w: %s", ErrPaymentDeclined, msg)
	}
	return &out, nil
}

// CancelSession calls POST /checkout_sessions/{id}/cancel
func (c *Client) CancelSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if err := c.guard(id, ActionCancel); err != nil {
		return nil, err
	}
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, sessionPath(id)+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	c.mirror(&out)
	return &out, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListProducts calls GET /products, filtered by query when non-empty
func (c *Client) ListProducts(ctx context.Context, query string) ([]Product, error) {
	path := "/products"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out ProductList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// GetProduct calls GET /products/{id}
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionPath(id string) string {
	return "/checkout_sessions/" + url.PathEscape(id)
}

// guard rejects actions the mirrored status forbids. Unknown sessions are left
// to the merchant.
func (c *Client) guard(id string, action Action) error {
	from, ok := c.Status(id)
	if !ok {
		return nil
	}
	if err := CheckTransition(from, action); err != nil {
		if te, ok := err.(*TransitionError); ok {
			te.SessionID = id
		}
		return err
	}
	return nil
}

func (c *Client) mirror(s *CheckoutSession) {
	if s.ID == "" {
		return
	}
	c.mu.Lock()
	c.statuses[s.ID] = s.Status
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := tracing.StartSpan(ctx, c.tracerProvider, tracerName, "acp.request",
		attribute.String("http.method", method),
		attribute.String("acp.path", path),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("acp: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("acp: build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("API-Version", c.apiVersion)
	req.Header.Set("Request-Id", requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	span.SetAttributes(attribute.String("acp.request_id", requestID))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("acp", "rest", 0, time.Since(start))
		tracing.RecordError(span, err)
		return fmt.Errorf("acp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("acp", "rest", resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("acp: read response: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("acp request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, data)
		tracing.RecordError(span, apiErr)
		return apiErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("acp: decode response: %w", err)
		}
	}
	return nil
}
