package ucp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCapabilities(t *testing.T) {
	arrayForm := json.RawMessage(`[
		{"name": "dev.ucp.shopping.order", "version": "2026-01-11", "spec": "s/order", "schema": "x/order.json"},
		{"name": "dev.ucp.shopping.checkout", "version": "2026-01-11", "spec": "s/checkout", "schema": "x/checkout.json"},
		{"name": "dev.ucp.shopping.fulfillment", "version": "2026-01-11", "extends": "dev.ucp.shopping.checkout", "config": {"regions": ["US"]}}
	]`)
	mapForm := json.RawMessage(`{
		"dev.ucp.shopping.fulfillment": [{"version": "2026-01-11", "extends": "dev.ucp.shopping.checkout", "config": {"regions": ["US"]}}],
		"dev.ucp.shopping.checkout": [{"version": "2026-01-11", "spec": "s/checkout", "schema": "x/checkout.json"}],
		"dev.ucp.shopping.order": {"version": "2026-01-11", "spec": "s/order", "schema": "x/order.json"}
	}`)

	t.Run("should normalize both shapes to identical records", func(t *testing.T) {
		fromArray, err := NormalizeCapabilities(arrayForm)
		require.NoError(t, err)
		fromMap, err := NormalizeCapabilities(mapForm)
		require.NoError(t, err)

		assert.Equal(t, fromArray, fromMap)
		require.Len(t, fromArray, 3)
		assert.Equal(t, "dev.ucp.shopping.checkout", fromArray[0].Name)
		assert.Equal(t, "dev.ucp.shopping.checkout", fromArray[1].Extends)
		assert.Equal(t, []any{"US"}, fromArray[1].Config["regions"])
	})

	t.Run("should keep document order for versions of one capability", func(t *testing.T) {
		caps, err := NormalizeCapabilities(json.RawMessage(`{"a": [{"version": "2"}, {"version": "1"}]}`))
		require.NoError(t, err)

		require.Len(t, caps, 2)
		assert.Equal(t, "2", caps[0].Version)
		assert.Equal(t, "1", caps[1].Version)
	})

	t.Run("should treat missing capabilities as empty", func(t *testing.T) {
		caps, err := NormalizeCapabilities(nil)
		require.NoError(t, err)
		assert.Empty(t, caps)
	})

	t.Run("should reject unnamed array entries", func(t *testing.T) {
		_, err := NormalizeCapabilities(json.RawMessage(`[{"version": "1"}]`))
		assert.Error(t, err)
	})

	t.Run("should reject scalars", func(t *testing.T) {
		_, err := NormalizeCapabilities(json.RawMessage(`"checkout"`))
		assert.Error(t, err)
	})
}

func TestParseProfile(t *testing.T) {
	t.Run("should resolve nested transports against the profile url", func(t *testing.T) {
		body := []byte(`{"ucp": {
			"version": "2026-01-11",
			"services": {"dev.ucp.shopping": {
				"version": "2026-01-11",
				"rest": {"endpoint": "/ucp/v1", "schema": "rest.json"},
				"mcp": {"endpoint": "https://rpc.example.com/mcp"},
				"a2a": {"endpoint": "/.well-known/agent-card.json"}
			}},
			"capabilities": []
		}}`)

		d, err := ParseProfile(body, "https://shop.example.com/.well-known/ucp")
		require.NoError(t, err)

		require.Len(t, d.Services, 1)
		svc := d.Services[0]
		assert.Equal(t, "dev.ucp.shopping", svc.Name)
		assert.Equal(t, "https://shop.example.com/ucp/v1", svc.Transports.REST.URL)
		assert.Equal(t, "rest.json", svc.Transports.REST.Schema)
		assert.Equal(t, "https://rpc.example.com/mcp", svc.Transports.MCP.URL)
		assert.Equal(t, "https://shop.example.com/.well-known/agent-card.json", svc.Transports.A2A.URL)
		assert.Equal(t, "2026-01-11", d.Version)
	})

	t.Run("should accept an array of flat service entries", func(t *testing.T) {
		body := []byte(`{"ucp": {
			"services": {"dev.ucp.shopping": [
				{"version": "1", "transport": "rest", "endpoint": "/api"},
				{"version": "1", "transport": "mcp", "endpoint": "/mcp"}
			]}
		}}`)

		d, err := ParseProfile(body, "http://127.0.0.1:8080/.well-known/ucp.json")
		require.NoError(t, err)

		require.Len(t, d.Services, 2)
		assert.Nil(t, d.Services[0].Transports.MCP)
		assert.Nil(t, d.Services[1].Transports.REST)
		assert.Equal(t, "http://127.0.0.1:8080/api", d.RESTEndpoint())
		assert.Equal(t, "http://127.0.0.1:8080/mcp", d.RPCEndpoint())
	})

	t.Run("should parse payment handlers and signing keys", func(t *testing.T) {
		body := []byte(`{
			"ucp": {"payment_handlers": {"com.example.pay": [{"id": "pay1", "version": "1", "config": {"env": "test"}}]}},
			"signing_keys": [{"kid": "k1", "kty": "EC"}]
		}`)

		d, err := ParseProfile(body, "https://shop.example.com/.well-known/ucp")
		require.NoError(t, err)

		require.Len(t, d.PaymentHandlers, 1)
		assert.Equal(t, "pay1", d.PaymentHandlers[0].ID)
		assert.Equal(t, "com.example.pay", d.PaymentHandlers[0].Name)
		require.Len(t, d.SigningKeys, 1)
		assert.JSONEq(t, `{"kid": "k1", "kty": "EC"}`, string(d.SigningKeys[0]))
	})

	t.Run("should read root-level payment handler arrays", func(t *testing.T) {
		body := []byte(`{"ucp": {}, "payment": {"handlers": [{"name": "card"}]}}`)

		d, err := ParseProfile(body, "https://shop.example.com/.well-known/ucp")
		require.NoError(t, err)
		require.Len(t, d.PaymentHandlers, 1)
		assert.Equal(t, "card", d.PaymentHandlers[0].ID)
	})

	t.Run("should require a root ucp object", func(t *testing.T) {
		_, err := ParseProfile([]byte(`{"services": {}}`), "https://shop.example.com/.well-known/ucp")
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("should reject unknown flat transports", func(t *testing.T) {
		body := []byte(`{"ucp": {"services": {"s": {"transport": "grpc", "endpoint": "/x"}}}}`)
		_, err := ParseProfile(body, "https://shop.example.com/.well-known/ucp")
		assert.Error(t, err)
	})
}
