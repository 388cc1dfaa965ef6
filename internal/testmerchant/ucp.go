package testmerchant

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harun/shopagent/pkg/acp"
	"github.com/harun/shopagent/pkg/jsonrpc"
)

// Paths served by the discovery-protocol merchant
const (
	UCPRestPrefix = "/ucp/v1"
	UCPRPCPath    = "/mcp"
)

// UCPOptions shapes the discovery-protocol merchant
type UCPOptions struct {
	// REST and RPC select the transports advertised and served.
	REST bool
	RPC  bool

	// FailRPC makes the JSON-RPC endpoint answer every call with HTTP 500.
	FailRPC bool

	// CapabilitiesAsMap publishes capabilities keyed by name instead of as an array.
	CapabilitiesAsMap bool

	// FlatServices publishes one service entry per transport with a "transport" field.
	FlatServices bool

	// ProfilePath defaults to /.well-known/ucp.
	ProfilePath string

	Catalog []Product
}

// UCPMerchant is an in-memory discovery-protocol merchant
type UCPMerchant struct {
	opts    UCPOptions
	catalog catalog
	router  chi.Router

	mu       sync.Mutex
	sessions map[string]*ucpSession
	orders   map[string]*ucpOrder

	restCalls atomic.Int64
	rpcCalls  atomic.Int64
}

type ucpItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
}

type ucpSession struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Items     []ucpItem `json:"items"`
	Subtotal  string    `json:"subtotal"`
	Currency  string    `json:"currency"`
}

type ucpOrder struct {
	OrderID         string         `json:"orderId"`
	Status          string         `json:"status"`
	SessionID       string         `json:"sessionId"`
	Items           []ucpItem      `json:"items"`
	Subtotal        string         `json:"subtotal"`
	Total           string         `json:"total"`
	Currency        string         `json:"currency"`
	ShippingAddress map[string]any `json:"shippingAddress"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type createCheckoutInput struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type completeCheckoutInput struct {
	ID              string         `json:"id"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentToken    string         `json:"paymentToken"`
	ShippingAddress map[string]any `json:"shippingAddress"`
}

// merchantError carries both an HTTP status and a JSON-RPC code
type merchantError struct {
	status  int
	code    int
	message string
}

func (e *merchantError) Error() string { return e.message }

const (
	codeNotFound        = -32004
	codePaymentDeclined = -32010
	codeConflict        = -32009
)

func errNotFound(msg string) *merchantError {
	return &merchantError{status: http.StatusNotFound, code: codeNotFound, message: msg}
}

func errBadRequest(msg string) *merchantError {
	return &merchantError{status: http.StatusBadRequest, code: jsonrpc.CodeInvalidParams, message: msg}
}

// NewUCPMerchant creates the merchant
func NewUCPMerchant(opts UCPOptions) *UCPMerchant {
	if opts.ProfilePath == "" {
		opts.ProfilePath = "/.well-known/ucp"
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}

	m := &UCPMerchant{
		opts:     opts,
		catalog:  catalog(opts.Catalog),
		sessions: make(map[string]*ucpSession),
		orders:   make(map[string]*ucpOrder),
	}

	r := chi.NewRouter()
	r.Get(opts.ProfilePath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, m.Profile())
	})

	if opts.REST {
		r.Route(UCPRestPrefix, func(r chi.Router) {
			r.Use(m.countREST)
			r.Get("/products", m.handleListProducts)
			r.Get("/products/search", m.handleListProducts)
			r.Get("/products/{id}", m.handleGetProduct)
			r.Post("/checkout-sessions", m.handleCreateCheckout)
			r.Post("/checkout-sessions/{id}/complete", m.handleCompleteCheckout)
			r.Get("/orders/{id}", m.handleGetOrder)
		})
	}

	if opts.RPC {
		r.Post(UCPRPCPath, m.handleRPC(m.rpcRouter()))
	}

	m.router = r
	return m
}

// ServeHTTP implements http.Handler
func (m *UCPMerchant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// RESTCalls returns the number of REST API requests served
func (m *UCPMerchant) RESTCalls() int64 { return m.restCalls.Load() }

// RPCCalls returns the number of JSON-RPC requests received
func (m *UCPMerchant) RPCCalls() int64 { return m.rpcCalls.Load() }

// Orders returns the number of orders placed
func (m *UCPMerchant) Orders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Profile returns the discovery document. Endpoints are relative to the profile URL.
func (m *UCPMerchant) Profile() map[string]any {
	const (
		version = "2026-01-11"
		spec    = "https://ucp.dev/specification/overview"
	)

	var entries []map[string]any
	if m.opts.FlatServices {
		if m.opts.REST {
			entries = append(entries, map[string]any{"version": version, "spec": spec, "transport": "rest", "endpoint": UCPRestPrefix, "schema": "https://ucp.dev/services/shopping/rest.openapi.json"})
		}
		if m.opts.RPC {
			entries = append(entries, map[string]any{"version": version, "spec": spec, "transport": "mcp", "endpoint": UCPRPCPath, "schema": "https://ucp.dev/services/shopping/mcp.openrpc.json"})
		}
	} else {
		entry := map[string]any{"version": version, "spec": spec}
		if m.opts.REST {
			entry["rest"] = map[string]any{"endpoint": UCPRestPrefix, "schema": "https://ucp.dev/services/shopping/rest.openapi.json"}
		}
		if m.opts.RPC {
			entry["mcp"] = map[string]any{"endpoint": UCPRPCPath, "schema": "https://ucp.dev/services/shopping/mcp.openrpc.json"}
		}
		entries = append(entries, entry)
	}

	var services any = entries
	if len(entries) == 1 {
		services = entries[0]
	}

	caps := []map[string]any{
		{"name": "dev.ucp.shopping.catalog", "version": version, "spec": "https://ucp.dev/specification/catalog", "schema": "https://ucp.dev/schemas/shopping/catalog.json"},
		{"name": "dev.ucp.shopping.checkout", "version": version, "spec": "https://ucp.dev/specification/checkout", "schema": "https://ucp.dev/schemas/shopping/checkout.json"},
		{"name": "dev.ucp.shopping.fulfillment", "version": version, "spec": "https://ucp.dev/specification/fulfillment", "schema": "https://ucp.dev/schemas/shopping/fulfillment.json", "extends": "dev.ucp.shopping.checkout"},
		{"name": "dev.ucp.shopping.order", "version": version, "spec": "https://ucp.dev/specification/order", "schema": "https://ucp.dev/schemas/shopping/order.json"},
	}

	var capabilities any = caps
	if m.opts.CapabilitiesAsMap {
		byName := map[string]any{}
		for _, c := range caps {
			entry := map[string]any{}
			for k, v := range c {
				if k != "name" {
					entry[k] = v
				}
			}
			byName[c["name"].(string)] = []map[string]any{entry}
		}
		capabilities = byName
	}

	return map[string]any{
		"ucp": map[string]any{
			"version":      version,
			"services":     map[string]any{"dev.ucp.shopping": services},
			"capabilities": capabilities,
			"payment_handlers": map[string]any{
				"dev.shopagent.mock_pay": []map[string]any{
					{"id": "mock", "version": version, "config": map[string]any{"tokens": []string{SuccessToken, FailureToken}}},
				},
			},
		},
		"signing_keys": []map[string]any{
			{"kid": "test-key-1", "kty": "EC", "crv": "P-256", "x": "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU", "y": "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0"},
		},
	}
}

func (m *UCPMerchant) countREST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.restCalls.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (m *UCPMerchant) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, m.listProducts(q.Get("q"), q.Get("category"), q.Get("limit")))
}

func (m *UCPMerchant) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	m.respond(w, http.StatusOK)(m.getProduct(chi.URLParam(r, "id")))
}

func (m *UCPMerchant) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var in createCheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	m.respond(w, http.StatusCreated)(m.createCheckout(in))
}

func (m *UCPMerchant) handleCompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var in completeCheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	in.ID = chi.URLParam(r, "id")
	m.respond(w, http.StatusOK)(m.completeCheckout(in))
}

func (m *UCPMerchant) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	m.respond(w, http.StatusOK)(m.getOrder(chi.URLParam(r, "id")))
}

func (m *UCPMerchant) respond(w http.ResponseWriter, status int) func(any, *merchantError) {
	return func(v any, merr *merchantError) {
		if merr != nil {
			writeJSON(w, merr.status, map[string]any{"error": merr.message})
			return
		}
		writeJSON(w, status, v)
	}
}

func (m *UCPMerchant) handleRPC(router *jsonrpc.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.rpcCalls.Add(1)
		if m.opts.FailRPC {
			http.Error(w, "rpc backend unavailable", http.StatusInternalServerError)
			return
		}
		router.ServeHTTP(w, r)
	}
}

func (m *UCPMerchant) rpcRouter() *jsonrpc.Router {
	router := jsonrpc.NewRouter()

	register := func(name string, fn func(params json.RawMessage) (any, *merchantError)) {
		_ = router.RegisterMethod(name, func(_ context.Context, params json.RawMessage) (any, error) {
			result, merr := fn(params)
			if merr != nil {
				return nil, jsonrpc.NewError(merr.code, merr.message, map[string]any{"status": merr.status})
			}
			return result, nil
		})
	}

	type listParams struct {
		Query    string `json:"query"`
		Category string `json:"category"`
		Limit    string `json:"limit"`
	}
	type idParams struct {
		ID string `json:"id"`
	}

	register("list_products", func(raw json.RawMessage) (any, *merchantError) {
		var p listParams
		_ = json.Unmarshal(raw, &p)
		return m.listProducts("", p.Category, p.Limit), nil
	})
	register("search_products", func(raw json.RawMessage) (any, *merchantError) {
		var p listParams
		if err := json.Unmarshal(raw, &p); err != nil || p.Query == "" {
			return nil, errBadRequest("query is required")
		}
		return m.listProducts(p.Query, p.Category, p.Limit), nil
	})
	register("get_product", func(raw json.RawMessage) (any, *merchantError) {
		var p idParams
		_ = json.Unmarshal(raw, &p)
		return m.getProduct(p.ID)
	})
	register("create_checkout", func(raw json.RawMessage) (any, *merchantError) {
		var in createCheckoutInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, errBadRequest("invalid params")
		}
		return m.createCheckout(in)
	})
	register("complete_checkout", func(raw json.RawMessage) (any, *merchantError) {
		var in completeCheckoutInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, errBadRequest("invalid params")
		}
		return m.completeCheckout(in)
	})
	register("get_order", func(raw json.RawMessage) (any, *merchantError) {
		var p idParams
		_ = json.Unmarshal(raw, &p)
		return m.getOrder(p.ID)
	})

	return router
}

func ucpProduct(p Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"category":    p.Category,
		"price":       acp.FormatMinor(p.Price),
		"currency":    p.Currency,
	}
}

func (m *UCPMerchant) listProducts(query, category, limit string) map[string]any {
	found := m.catalog.search(query, category)
	if n, err := strconv.Atoi(limit); err == nil && n > 0 && n < len(found) {
		found = found[:n]
	}
	products := make([]map[string]any, 0, len(found))
	for _, p := range found {
		products = append(products, ucpProduct(p))
	}
	return map[string]any{"products": products, "total": len(products)}
}

func (m *UCPMerchant) getProduct(id string) (any, *merchantError) {
	p, ok := m.catalog.find(id)
	if !ok {
		return nil, errNotFound("product not found: " + id)
	}
	return ucpProduct(p), nil
}

func (m *UCPMerchant) createCheckout(in createCheckoutInput) (any, *merchantError) {
	if len(in.Items) == 0 {
		return nil, errBadRequest("items must not be empty")
	}

	session := &ucpSession{SessionID: newID("cs_"), Status: "open", Currency: "USD"}
	var subtotal acp.Amount
	for _, it := range in.Items {
		p, ok := m.catalog.find(it.ProductID)
		if !ok {
			return nil, errBadRequest("unknown product: " + it.ProductID)
		}
		if it.Quantity < 1 {
			return nil, errBadRequest("quantity must be at least 1")
		}
		session.Items = append(session.Items, ucpItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			Price:     acp.FormatMinor(p.Price),
			Currency:  p.Currency,
		})
		subtotal += p.Price * acp.Amount(it.Quantity)
	}
	session.Subtotal = acp.FormatMinor(subtotal)

	m.mu.Lock()
	m.sessions[session.SessionID] = session
	m.mu.Unlock()

	return session, nil
}

func (m *UCPMerchant) completeCheckout(in completeCheckoutInput) (any, *merchantError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[in.ID]
	if !ok {
		return nil, errNotFound("checkout session not found: " + in.ID)
	}
	if session.Status != "open" {
		return nil, &merchantError{status: http.StatusConflict, code: codeConflict, message: "checkout session is " + session.Status}
	}
	if len(in.ShippingAddress) == 0 {
		return nil, errBadRequest("shippingAddress is required")
	}
	if in.PaymentToken == "" {
		return nil, errBadRequest("paymentToken is required")
	}
	if in.PaymentToken == FailureToken {
		return nil, &merchantError{status: http.StatusPaymentRequired, code: codePaymentDeclined, message: "payment declined"}
	}

	session.Status = "completed"
	order := &ucpOrder{
		OrderID:         newID("ord_"),
		Status:          "confirmed",
		SessionID:       session.SessionID,
		Items:           session.Items,
		Subtotal:        session.Subtotal,
		Total:           session.Subtotal,
		Currency:        session.Currency,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       time.Now().UTC(),
	}
	m.orders[order.OrderID] = order
	return order, nil
}

func (m *UCPMerchant) getOrder(id string) (any, *merchantError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, errNotFound("order not found: " + id)
	}
	return order, nil
}
