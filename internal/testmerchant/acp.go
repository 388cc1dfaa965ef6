package testmerchant

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/harun/shopagent/pkg/acp"
)

// ACPOptions shapes the checkout-session merchant
type ACPOptions struct {
	APIKey         string
	TaxBasisPoints int64
	Shipping       acp.Amount
	Catalog        []Product
}

// ACPRequest is a request seen by the merchant, kept for header assertions
type ACPRequest struct {
	Method         string
	Path           string
	APIVersion     string
	RequestID      string
	IdempotencyKey string
}

// ACPMerchant is an in-memory checkout-session merchant
type ACPMerchant struct {
	opts    ACPOptions
	catalog catalog
	router  chi.Router

	mu       sync.Mutex
	sessions map[string]*acp.CheckoutSession
	requests []ACPRequest
	orders   int
}

// NewACPMerchant creates the merchant
func NewACPMerchant(opts ACPOptions) *ACPMerchant {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}

	m := &ACPMerchant{
		opts:     opts,
		catalog:  catalog(opts.Catalog),
		sessions: make(map[string]*acp.CheckoutSession),
	}

	r := chi.NewRouter()
	r.Use(m.record, m.authenticate)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/products", m.handleListProducts)
	r.Get("/products/{id}", m.handleGetProduct)
	r.Post("/checkout_sessions", m.handleCreate)
	r.Get("/checkout_sessions/{id}", m.handleGet)
	r.Post("/checkout_sessions/{id}", m.handleUpdate)
	r.Post("/checkout_sessions/{id}/complete", m.handleComplete)
	r.Post("/checkout_sessions/{id}/cancel", m.handleCancel)

	m.router = r
	return m
}

// ServeHTTP implements http.Handler
func (m *ACPMerchant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Requests returns the requests received so far
func (m *ACPMerchant) Requests() []ACPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ACPRequest(nil), m.requests...)
}

// Orders returns the number of completed sessions
func (m *ACPMerchant) Orders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders
}

func (m *ACPMerchant) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, ACPRequest{
			Method:         r.Method,
			Path:           r.URL.Path,
			APIVersion:     r.Header.Get("API-Version"),
			RequestID:      r.Header.Get("Request-Id"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		m.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (m *ACPMerchant) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || token != m.opts.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid_request", "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, typ, code, message string) {
	writeJSON(w, status, acp.ErrorBody{Type: typ, Code: code, Message: message})
}

func acpProduct(p Product) acp.Product {
	return acp.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Currency:    p.Currency,
	}
}

func (m *ACPMerchant) handleListProducts(w http.ResponseWriter, r *http.Request) {
	found := m.catalog.search(r.URL.Query().Get("q"), "")
	out := acp.ProductList{Products: make([]acp.Product, 0, len(found))}
	for _, p := range found {
		out.Products = append(out.Products, acpProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *ACPMerchant) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := m.catalog.find(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "invalid_request", "not_found", "product not found")
		return
	}
	writeJSON(w, http.StatusOK, acpProduct(p))
}

func (m *ACPMerchant) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req acp.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid_body", err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "empty_items", "items must not be empty")
		return
	}

	session := &acp.CheckoutSession{
		ID:       newID("cs_"),
		Currency: "USD",
		PaymentProvider: &acp.PaymentProvider{
			Provider:                "mock",
			SupportedPaymentMethods: []string{"card"},
		},
	}
	if err := m.price(session, req.Items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid_items", err.Error())
		return
	}
	session.FulfillmentAddress = req.FulfillmentAddress
	session.Status = acp.StatusAfterUpdate(session.FulfillmentAddress != nil)
	m.retotal(session)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, session)
}

// Session returns a copy of the stored session
func (m *ACPMerchant) Session(id string) (acp.CheckoutSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return acp.CheckoutSession{}, false
	}
	return *s, true
}

// SetStatus changes a session's status out of band, as a merchant back office would
func (m *ACPMerchant) SetStatus(id string, status acp.Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.Status = status
	}
	return ok
}

func (m *ACPMerchant) handleGet(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "invalid_request", "not_found", "checkout session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (m *ACPMerchant) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req acp.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid_body", err.Error())
		return
	}

	m.transition(w, chi.URLParam(r, "id"), acp.ActionUpdate, func(session *acp.CheckoutSession) error {
		if len(req.Items) > 0 {
			if err := m.price(session, req.Items); err != nil {
				return err
			}
		}
		if req.FulfillmentAddress != nil {
			session.FulfillmentAddress = req.FulfillmentAddress
		}
		session.Messages = nil
		session.Status = acp.StatusAfterUpdate(session.FulfillmentAddress != nil)
		m.retotal(session)
		return nil
	})
}

func (m *ACPMerchant) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req acp.CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid_body", err.Error())
		return
	}
	if req.PaymentData.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing_token", "payment_data.token is required")
		return
	}

	m.transition(w, chi.URLParam(r, "id"), acp.ActionComplete, func(session *acp.CheckoutSession) error {
		if req.PaymentData.Token == FailureToken {
			session.Status = acp.StatusNotReadyForPayment
			session.Messages = []acp.Message{{Type: "error", Code: "payment_declined", Content: "Payment declined by issuer"}}
			return nil
		}
		session.Status = acp.StatusCompleted
		session.Messages = nil
		session.Order = &acp.Order{
			ID:                newID("acp_"),
			CheckoutSessionID: session.ID,
		}
		m.orders++
		return nil
	})
}

func (m *ACPMerchant) handleCancel(w http.ResponseWriter, r *http.Request) {
	m.transition(w, chi.URLParam(r, "id"), acp.ActionCancel, func(session *acp.CheckoutSession) error {
		session.Status = acp.StatusCanceled
		return nil
	})
}

// transition applies fn to the session when the state machine allows action
func (m *ACPMerchant) transition(w http.ResponseWriter, id string, action acp.Action, fn func(*acp.CheckoutSession) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "invalid_request", "not_found", "checkout session not found")
		return
	}
	if err := acp.CheckTransition(session.Status, action); err != nil {
		writeError(w, http.StatusConflict, "invalid_request", "invalid_state", err.Error())
		return
	}

	if err := fn(session); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid_items", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (m *ACPMerchant) price(session *acp.CheckoutSession, items []acp.Item) error {
	lines := make([]acp.LineItem, 0, len(items))
	for i, it := range items {
		p, ok := m.catalog.find(it.ID)
		if !ok {
			return errors.New("unknown product: " + it.ID)
		}
		if it.Quantity < 1 {
			return errors.New("quantity must be at least 1")
		}
		lines = append(lines, acp.LineItem{
			ID:         fmt.Sprintf("%s_li%d", session.ID, i+1),
			Item:       it,
			Name:       p.Name,
			BaseAmount: p.Price,
		})
	}
	session.LineItems = lines
	return nil
}

func (m *ACPMerchant) retotal(session *acp.CheckoutSession) {
	var shipping acp.Amount
	if session.FulfillmentAddress != nil {
		shipping = m.opts.Shipping
	}
	session.Totals = acp.ComputeTotals(session.LineItems, m.opts.TaxBasisPoints, shipping)
}
