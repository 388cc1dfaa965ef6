package ucp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/jsonrpc"
)

const (
	tracerName       = "github.com/harun/shopagent/pkg/ucp"
	defaultUserAgent = "shopagent-ucp/1.0"
	defaultTimeout   = 30 * time.Second
	maxBodyPreview   = 4096
)

// Client discovers one merchant and calls its shopping API
type Client struct {
	httpClient     *http.Client
	userAgent      string
	timeout        time.Duration
	transport      string
	logger         zerolog.Logger
	tracerProvider trace.TracerProvider

	mu        sync.RWMutex
	discovery *Discovery
	rpc       *jsonrpc.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for discovery, REST and JSON-RPC calls
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the timeout applied to each outbound request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransport sets the default transport policy (auto, rest or mcp)
func WithTransport(transport string) Option {
	return func(c *Client) {
		if transport != "" {
			c.transport = transport
		}
	}
}

// WithTracerProvider sets the tracer provider; the global provider is used otherwise
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = tp
	}
}

// NewClient creates a client with no merchant bound
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  defaultUserAgent,
		timeout:    defaultTimeout,
		transport:  TransportAuto,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Discover resolves domain to a profile, probing each candidate URL in turn.
// On success the profile replaces any previously cached one.
func (c *Client) Discover(ctx context.Context, domain string) (*Discovery, error) {
	candidates, err := profileURLs(domain)
	if err != nil {
		return nil, &DiscoveryError{Domain: domain, Err: err}
	}

	ctx, span := tracing.StartSpan(ctx, c.tracerProvider, tracerName, "ucp.discover",
		attribute.String("ucp.domain", domain),
	)
	defer span.End()

	var attempts []string
	var lastErr error
	for _, candidate := range candidates {
		attempts = append(attempts, candidate)

		body, err := c.fetchProfile(ctx, candidate)
		if err != nil {
			c.logger.Debug().Err(err).Str("url", candidate).Msg("profile probe failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		d, err := ParseProfile(body, candidate)
		if err != nil {
			// first 2xx JSON document ends the search
			lastErr = err
			break
		}
		d.Domain = domain

		c.bind(d)
		span.SetAttributes(
			attribute.String("ucp.profile_url", candidate),
			attribute.Int("ucp.capabilities", len(d.Capabilities)),
		)
		c.logger.Info().
			Str("domain", domain).
			Str("profile_url", candidate).
			Str("version", d.Version).
			Int("capabilities", len(d.Capabilities)).
			Bool("rest", d.RESTEndpoint() != "").
			Bool("mcp", d.RPCEndpoint() != "").
			Msg("merchant discovered")
		return d, nil
	}

	derr := &DiscoveryError{Domain: domain, Attempts: attempts, Err: lastErr}
	tracing.RecordError(span, derr)
	return nil, derr
}

func (c *Client) bind(d *Discovery) {
	var rpc *jsonrpc.Client
	if ep := d.RPCEndpoint(); ep != "" {
		rpc = jsonrpc.NewClient(ep,
			jsonrpc.WithHTTPClient(c.httpClient),
			jsonrpc.WithTimeout(c.timeout),
			jsonrpc.WithHeader("User-Agent", c.userAgent),
			jsonrpc.WithLogger(c.logger),
		)
	}

	c.mu.Lock()
	c.discovery = d
	c.rpc = rpc
	c.mu.Unlock()
}

var errNotJSON = errors.New("response is not JSON")

func (c *Client) fetchProfile(ctx context.Context, profileURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("ucp", "discovery", 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("ucp", "discovery", resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: HTTP %d", profileURL, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: %w", profileURL, errNotJSON)
	}
	return body, nil
}

// profileURLs lists the URLs to probe for domain. An explicit scheme is kept;
// otherwise https is tried before http.
func profileURLs(domain string) ([]string, error) {
	in := strings.TrimSpace(domain)
	if in == "" {
		return nil, fmt.Errorf("domain is empty")
	}

	schemes := []string{"https", "http"}
	if strings.Contains(in, "://") {
		u, err := url.Parse(in)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return nil, fmt.Errorf("unsupported URL scheme %q (must be http or https)", u.Scheme)
		}
		schemes = []string{u.Scheme}
		in = u.Host
	} else if host, _, found := strings.Cut(in, "/"); found {
		in = host
	}
	if in == "" {
		return nil, fmt.Errorf("invalid domain (missing host): %q", domain)
	}

	var out []string
	for _, scheme := range schemes {
		for _, path := range WellKnownPaths {
			out = append(out, (&url.URL{Scheme: scheme, Host: in, Path: path}).String())
		}
	}
	return out, nil
}

// Discovery returns the cached profile, or nil before a successful Discover
func (c *Client) Discovery() *Discovery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discovery
}

// Capabilities returns a copy of the cached capability list
func (c *Client) Capabilities() []Capability {
	d := c.Discovery()
	if d == nil {
		return nil
	}
	return append([]Capability(nil), d.Capabilities...)
}

// HasCapability reports whether the merchant advertises name
func (c *Client) HasCapability(name string) bool {
	_, ok := c.Discovery().Capability(name)
	return ok
}

// Capability returns the first capability named name
func (c *Client) Capability(name string) (Capability, bool) {
	return c.Discovery().Capability(name)
}

// RESTEndpoint returns the bound REST endpoint, or ""
func (c *Client) RESTEndpoint() string {
	return c.Discovery().RESTEndpoint()
}

// RPCEndpoint returns the bound JSON-RPC endpoint, or ""
func (c *Client) RPCEndpoint() string {
	return c.Discovery().RPCEndpoint()
}

// CallAPI sends a REST-style request to the merchant over the selected transport
// and returns the decoded JSON result.
func (c *Client) CallAPI(ctx context.Context, path string, opts CallOptions) (any, error) {
	c.mu.RLock()
	d, rpc := c.discovery, c.rpc
	c.mu.RUnlock()
	if d == nil {
		return nil, ErrNotDiscovered
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	transport := opts.Transport
	if transport == "" {
		transport = c.transport
	}

	ctx, span := tracing.StartSpan(ctx, c.tracerProvider, tracerName, "ucp.call_api",
		attribute.String("http.method", method),
		attribute.String("ucp.path", path),
		attribute.String("ucp.transport", transport),
	)
	defer span.End()

	result, used, err := c.dispatch(ctx, span, d, rpc, transport, method, path, opts.Body)
	if used != "" {
		span.SetAttributes(attribute.String("ucp.transport_used", used))
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (c *Client) dispatch(ctx context.Context, span trace.Span, d *Discovery, rpc *jsonrpc.Client, transport, method, path string, body any) (any, string, error) {
	restBase := d.RESTEndpoint()

	switch transport {
	case TransportMCP:
		if rpc == nil {
			return nil, "", fmt.Errorf("%w: merchant has no JSON-RPC endpoint", ErrTransportUnavailable)
		}
		result, err := c.callRPC(ctx, rpc, method, path, body)
		return result, TransportMCP, err

	case TransportREST:
		if restBase == "" {
			return nil, "", fmt.Errorf("%w: merchant has no REST endpoint", ErrTransportUnavailable)
		}
		result, err := c.callREST(ctx, restBase, method, path, body)
		return result, TransportREST, err

	case TransportAuto:
		if rpc != nil {
			result, err := c.callRPC(ctx, rpc, method, path, body)
			if err == nil || restBase == "" {
				return result, TransportMCP, err
			}

			c.logger.Debug().
				Err(err).
				Str("method", method).
				Str("path", path).
				Msg("json-rpc call failed, falling back to rest")
			span.SetAttributes(attribute.String("ucp.fallback_error", err.Error()))
			span.AddEvent("transport_fallback", trace.WithAttributes(
				attribute.String("from", TransportMCP),
				attribute.String("to", TransportREST),
			))
			observability.RecordTransportFallback(TransportMCP, TransportREST)
		}
		if restBase == "" {
			return nil, "", fmt.Errorf("%w: merchant has no REST or JSON-RPC endpoint", ErrTransportUnavailable)
		}
		result, err := c.callREST(ctx, restBase, method, path, body)
		return result, TransportREST, err
	}

	return nil, "", fmt.Errorf("ucp: unknown transport %q", transport)
}

func (c *Client) callRPC(ctx context.Context, rpc *jsonrpc.Client, method, path string, body any) (any, error) {
	name, params := RPCMethodFor(method, path, body)

	var result any
	if err := rpc.Call(ctx, name, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) callREST(ctx context.Context, base, method, path string, body any) (any, error) {
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ucp: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("ucp: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("ucp", TransportREST, 0, time.Since(start))
		return nil, fmt.Errorf("ucp: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("ucp", TransportREST, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ucp: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxBodyPreview {
			data = data[:maxBodyPreview]
		}
		return nil, &APIError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ucp: decode response from %s: %w", target, err)
	}
	return result, nil
}
