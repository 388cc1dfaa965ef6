package ucp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/harun/shopagent/internal/testmerchant"
	"github.com/harun/shopagent/pkg/jsonrpc"
)

func newMerchant(t *testing.T, opts testmerchant.UCPOptions) (*testmerchant.UCPMerchant, *httptest.Server) {
	t.Helper()
	m := testmerchant.NewUCPMerchant(opts)
	server := httptest.NewServer(m)
	t.Cleanup(server.Close)
	return m, server
}

func discovered(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	c := NewClient(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	_, err := c.Discover(context.Background(), serverURL)
	require.NoError(t, err)
	return c
}

func TestDiscover(t *testing.T) {
	t.Run("should discover with an explicit scheme", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{REST: true, RPC: true})

		c := NewClient()
		d, err := c.Discover(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, server.URL+"/.well-known/ucp", d.ProfileURL)
		assert.Equal(t, server.URL+testmerchant.UCPRestPrefix, c.RESTEndpoint())
		assert.Equal(t, server.URL+testmerchant.UCPRPCPath, c.RPCEndpoint())
		assert.True(t, c.HasCapability("dev.ucp.shopping.checkout"))
		assert.False(t, c.HasCapability("dev.ucp.shopping.loyalty"))
		assert.Len(t, c.Capabilities(), 4)
		assert.NotEmpty(t, d.PaymentHandlers)
		assert.Len(t, d.SigningKeys, 1)
	})

	t.Run("should probe the second well-known path", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{REST: true, ProfilePath: "/.well-known/ucp.json"})

		d, err := NewClient().Discover(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, server.URL+"/.well-known/ucp.json", d.ProfileURL)
	})

	t.Run("should fall back from https to http for bare domains", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{REST: true})

		c := NewClient(WithHTTPClient(testmerchant.RoutingClient(server.URL)))
		d, err := c.Discover(context.Background(), "shop.test")

		require.NoError(t, err)
		assert.Equal(t, "http://shop.test/.well-known/ucp", d.ProfileURL)
		assert.Equal(t, "shop.test", d.Domain)
		assert.Equal(t, "http://shop.test/ucp/v1", c.RESTEndpoint())
	})

	t.Run("should report every attempt when nothing resolves", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c := NewClient(WithHTTPClient(testmerchant.RoutingClient(server.URL)))
		_, err := c.Discover(context.Background(), "nowhere.test")

		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "nowhere.test", derr.Domain)
		assert.Equal(t, []string{
			"https://nowhere.test/.well-known/ucp",
			"https://nowhere.test/.well-known/ucp.json",
			"http://nowhere.test/.well-known/ucp",
			"http://nowhere.test/.well-known/ucp.json",
		}, derr.Attempts)
		assert.Nil(t, c.Discovery())
	})

	t.Run("should fail on a json document without a ucp object", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name": "not a profile"}`))
		}))
		defer server.Close()

		_, err := NewClient().Discover(context.Background(), server.URL)

		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)
		assert.Len(t, derr.Attempts, 1)
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("should replace the cached profile on re-discovery", func(t *testing.T) {
		_, restOnly := newMerchant(t, testmerchant.UCPOptions{REST: true})
		_, rpcOnly := newMerchant(t, testmerchant.UCPOptions{RPC: true})

		c := discovered(t, restOnly.URL)
		assert.NotEmpty(t, c.RESTEndpoint())

		_, err := c.Discover(context.Background(), rpcOnly.URL)
		require.NoError(t, err)
		assert.Empty(t, c.RESTEndpoint())
		assert.Equal(t, rpcOnly.URL+testmerchant.UCPRPCPath, c.RPCEndpoint())
	})

	t.Run("should reject unsupported schemes", func(t *testing.T) {
		_, err := NewClient().Discover(context.Background(), "ftp://shop.test")

		var derr *DiscoveryError
		assert.ErrorAs(t, err, &derr)
	})
}

func TestCallAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail before discovery", func(t *testing.T) {
		_, err := NewClient().CallAPI(ctx, "/products", CallOptions{})
		assert.ErrorIs(t, err, ErrNotDiscovered)
	})

	t.Run("should use json-rpc on an rpc-only merchant", func(t *testing.T) {
		m, server := newMerchant(t, testmerchant.UCPOptions{RPC: true})
		c := discovered(t, server.URL)

		result, err := c.CallAPI(ctx, "/products?q=keyboard", CallOptions{})

		require.NoError(t, err)
		products := result.(map[string]any)["products"].([]any)
		assert.Len(t, products, 1)
		assert.Equal(t, int64(1), m.RPCCalls())
	})

	t.Run("should use rest on a rest-only merchant", func(t *testing.T) {
		m, server := newMerchant(t, testmerchant.UCPOptions{REST: true})
		c := discovered(t, server.URL)

		result, err := c.CallAPI(ctx, "/products/prod_kb", CallOptions{})

		require.NoError(t, err)
		assert.Equal(t, "79.99", result.(map[string]any)["price"])
		assert.Equal(t, int64(1), m.RESTCalls())
	})

	t.Run("should not fall back when mcp is forced", func(t *testing.T) {
		m, server := newMerchant(t, testmerchant.UCPOptions{REST: true})
		c := discovered(t, server.URL)

		_, err := c.CallAPI(ctx, "/products", CallOptions{Transport: TransportMCP})

		assert.ErrorIs(t, err, ErrTransportUnavailable)
		assert.Zero(t, m.RESTCalls())
	})

	t.Run("should never try json-rpc when rest is forced", func(t *testing.T) {
		m, server := newMerchant(t, testmerchant.UCPOptions{REST: true, RPC: true})
		c := discovered(t, server.URL)

		_, err := c.CallAPI(ctx, "/products", CallOptions{Transport: TransportREST})

		require.NoError(t, err)
		assert.Zero(t, m.RPCCalls())
		assert.Equal(t, int64(1), m.RESTCalls())
	})

	t.Run("should fall back to rest once and record the suppressed error", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

		m, server := newMerchant(t, testmerchant.UCPOptions{REST: true, RPC: true, FailRPC: true})
		c := discovered(t, server.URL, WithTracerProvider(tp))

		result, err := c.CallAPI(ctx, "/products", CallOptions{})

		require.NoError(t, err)
		assert.Len(t, result.(map[string]any)["products"], 3)
		assert.Equal(t, int64(1), m.RPCCalls())
		assert.Equal(t, int64(1), m.RESTCalls())

		var callSpan sdktrace.ReadOnlySpan
		for _, s := range recorder.Ended() {
			if s.Name() == "ucp.call_api" {
				callSpan = s
			}
		}
		require.NotNil(t, callSpan)
		attrs := attribute.NewSet(callSpan.Attributes()...)
		used, _ := attrs.Value("ucp.transport_used")
		assert.Equal(t, TransportREST, used.AsString())
		fallbackErr, ok := attrs.Value("ucp.fallback_error")
		require.True(t, ok)
		assert.Contains(t, fallbackErr.AsString(), "500")
	})

	t.Run("should propagate json-rpc errors when no rest endpoint exists", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{RPC: true})
		c := discovered(t, server.URL)

		_, err := c.CallAPI(ctx, "/products/nope", CallOptions{})

		require.Error(t, err)
		assert.True(t, jsonrpc.IsProtocolError(err))
	})

	t.Run("should surface rest failures as APIError", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{REST: true})
		c := discovered(t, server.URL)

		_, err := c.CallAPI(ctx, "/products/nope", CallOptions{})

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, http.MethodGet, apiErr.Method)
		assert.Contains(t, apiErr.Body, "product not found")
	})

	t.Run("should run a checkout over json-rpc", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{RPC: true})
		c := discovered(t, server.URL)

		session, err := c.CallAPI(ctx, "/checkout-sessions", CallOptions{
			Method: http.MethodPost,
			Body:   map[string]any{"items": []map[string]any{{"productId": "prod_kb", "quantity": 2}}},
		})
		require.NoError(t, err)
		sessionID := session.(map[string]any)["sessionId"].(string)
		assert.Equal(t, "159.98", session.(map[string]any)["subtotal"])

		order, err := c.CallAPI(ctx, "/checkout-sessions/"+sessionID+"/complete", CallOptions{
			Method: http.MethodPost,
			Body: map[string]any{
				"paymentMethod":   "mock",
				"paymentToken":    testmerchant.SuccessToken,
				"shippingAddress": map[string]any{"name": "Ada"},
			},
		})
		require.NoError(t, err)
		orderID := order.(map[string]any)["orderId"].(string)
		assert.Regexp(t, `^ord_`, orderID)

		fetched, err := c.CallAPI(ctx, "/orders/"+orderID, CallOptions{})
		require.NoError(t, err)
		assert.Equal(t, "confirmed", fetched.(map[string]any)["status"])
	})

	t.Run("should reject unknown transports", func(t *testing.T) {
		_, server := newMerchant(t, testmerchant.UCPOptions{REST: true})
		c := discovered(t, server.URL)

		_, err := c.CallAPI(ctx, "/products", CallOptions{Transport: "carrier-pigeon"})
		assert.Error(t, err)
	})
}
