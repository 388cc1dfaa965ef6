package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/shopagent/internal/observability"
)

// DefaultTimeout bounds every call made by a Client
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4096

// Client sends JSON-RPC 2.0 envelopes to one endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	logger     zerolog.Logger
	nextID     atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for endpoint
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		headers:    map[string]string{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call invokes method with params and decodes the result into result (which may be nil).
// Ids start at 1 and strictly increase per client.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)

	req, err := newRequest(method, params, strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}

	body, err := c.post(ctx, method, req)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("jsonrpc: decode response for %s: %w", method, err)
	}
	if resp.JSONRPC != Version {
		return fmt.Errorf("jsonrpc: unexpected version %q in response to %s", resp.JSONRPC, method)
	}
	if !sameID(resp.ID, id) {
		return fmt.Errorf("jsonrpc: response id %s does not match request id %d", string(resp.ID), id)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("jsonrpc: decode result for %s: %w", method, err)
	}
	return nil
}

// Notify sends a notification. The response body is not read.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req, err := newRequest(method, params, "")
	if err != nil {
		return err
	}
	_, err = c.post(ctx, method, req)
	return err
}

func newRequest(method string, params any, id string) (*Request, error) {
	req := &Request{JSONRPC: Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: encode params for %s: %w", method, err)
		}
		req.Params = raw
	}
	if id != "" {
		req.ID = json.RawMessage(id)
	}
	return req, nil
}

// post sends req and returns the body of a 2xx response. Notifications return a nil body.
func (c *Client) post(ctx context.Context, method string, req *Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordHTTPRequest("jsonrpc", "mcp", 0, time.Since(start))
		return nil, fmt.Errorf("jsonrpc: %s: %w", method, err)
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("jsonrpc", "mcp", resp.StatusCode, time.Since(start))

	c.logger.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("jsonrpc call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	if req.IsNotification() {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: read response for %s: %w", method, err)
	}
	return body, nil
}

func sameID(raw json.RawMessage, id int64) bool {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String() == strconv.FormatInt(id, 10)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == strconv.FormatInt(id, 10)
	}
	return false
}
