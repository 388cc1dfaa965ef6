package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/harun/shopagent/pkg/acp"
)

// Protocol is the commerce protocol bound to a run
type Protocol string

const (
	ProtocolNone Protocol = ""
	ProtocolUCP  Protocol = "ucp"
	ProtocolACP  Protocol = "acp"
)

var (
	// ErrNoProtocol is returned by catalog and checkout tools before discover_merchant succeeded
	ErrNoProtocol = errors.New("no merchant discovered: call discover_merchant first")

	// ErrProtocolBound is returned when a run tries to bind a second merchant
	ErrProtocolBound = errors.New("a merchant is already bound for this run")

	ErrEmptyCart       = errors.New("cart is empty: add items before starting checkout")
	ErrNoSession       = errors.New("no checkout session: call initiate_checkout first")
	ErrNoShipping      = errors.New("shipping address required: call submit_shipping before submit_payment")
	ErrNotInCart       = errors.New("product is not in the cart")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// CartItem is one cart line. UnitPrice is a decimal string in Currency.
type CartItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Currency  string `json:"currency"`
}

// ShippingAddress is the address submitted for the active checkout
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Missing returns the names of required fields that are empty
func (a ShippingAddress) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Order is a placed order. It is never modified after RecordOrder.
type Order struct {
	ID              string          `json:"orderId"`
	Status          string          `json:"status"`
	Protocol        Protocol        `json:"protocol"`
	SessionID       string          `json:"sessionId"`
	Items           []CartItem      `json:"items"`
	Subtotal        string          `json:"subtotal"`
	Total           string          `json:"total"`
	Currency        string          `json:"currency"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ShoppingState is the mutable state of one run: bound protocol, cart,
// checkout session, shipping address and the order ledger.
// It is owned by a single orchestrator and is not safe for concurrent use.
type ShoppingState struct {
	protocol  Protocol
	merchant  string
	cart      []CartItem
	sessionID string
	shipping  *ShippingAddress
	orders    []Order
}

// NewShoppingState returns an empty state
func NewShoppingState() *ShoppingState {
	return &ShoppingState{}
}

// Reset clears everything, including the bound protocol and the order ledger
func (s *ShoppingState) Reset() {
	*s = ShoppingState{}
}

// Protocol returns the bound protocol
func (s *ShoppingState) Protocol() Protocol { return s.protocol }

// Merchant returns the bound merchant domain or endpoint
func (s *ShoppingState) Merchant() string { return s.merchant }

// SessionID returns the active checkout session id, or ""
func (s *ShoppingState) SessionID() string { return s.sessionID }

// Shipping returns a copy of the submitted shipping address, or nil
func (s *ShoppingState) Shipping() *ShippingAddress {
	if s.shipping == nil {
		return nil
	}
	addr := *s.shipping
	return &addr
}

// BindProtocol binds the merchant for the run. Rebinding the same merchant
// and protocol is a no-op; binding a different one fails.
func (s *ShoppingState) BindProtocol(p Protocol, merchant string) error {
	if p == ProtocolNone {
		return fmt.Errorf("cannot bind an empty protocol")
	}
	if s.protocol != ProtocolNone && (s.protocol != p || s.merchant != merchant) {
		return fmt.Errorf("%w (%s via %s)", ErrProtocolBound, s.merchant, s.protocol)
	}
	s.protocol = p
	s.merchant = merchant
	return nil
}

// Cart returns a copy of the cart lines
func (s *ShoppingState) Cart() []CartItem {
	return append([]CartItem{}, s.cart...)
}

// ItemCount returns the sum of quantities
func (s *ShoppingState) ItemCount() int {
	n := 0
	for _, it := range s.cart {
		n += it.Quantity
	}
	return n
}

// AddItem adds item to the cart. An existing line for the same product has
// its quantity increased instead of gaining a duplicate. The cart is left
// untouched when the item has no usable price or a different currency.
func (s *ShoppingState) AddItem(item CartItem) (CartItem, error) {
	if item.ProductID == "" {
		return CartItem{}, fmt.Errorf("productId is required")
	}
	if item.Quantity < 1 {
		return CartItem{}, ErrInvalidQuantity
	}
	if _, err := acp.ParseDecimal(item.UnitPrice); err != nil {
		return CartItem{}, fmt.Errorf("price of %s: %w", item.ProductID, err)
	}
	for _, it := range s.cart {
		if item.Currency != "" && it.Currency != "" && it.Currency != item.Currency {
			return CartItem{}, fmt.Errorf("cart mixes currencies %s and %s", it.Currency, item.Currency)
		}
	}
	for i := range s.cart {
		if s.cart[i].ProductID == item.ProductID {
			s.cart[i].Quantity += item.Quantity
			return s.cart[i], nil
		}
	}
	s.cart = append(s.cart, item)
	return item, nil
}

// RemoveItem decrements a line by quantity, removing it when it reaches zero.
// A quantity of 0 removes the whole line.
func (s *ShoppingState) RemoveItem(productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	for i := range s.cart {
		if s.cart[i].ProductID != productID {
			continue
		}
		if quantity == 0 || quantity >= s.cart[i].Quantity {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
			return nil
		}
		s.cart[i].Quantity -= quantity
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotInCart, productID)
}

// Subtotal sums the cart in minor units. Mixed currencies are rejected.
func (s *ShoppingState) Subtotal() (acp.Amount, string, error) {
	var total acp.Amount
	currency := ""
	for _, it := range s.cart {
		if currency == "" {
			currency = it.Currency
		} else if it.Currency != "" && it.Currency != currency {
			return 0, "", fmt.Errorf("cart mixes currencies %s and %s", currency, it.Currency)
		}
		unit, err := acp.ParseDecimal(it.UnitPrice)
		if err != nil {
			return 0, "", fmt.Errorf("price of %s: %w", it.ProductID, err)
		}
		total += unit * acp.Amount(it.Quantity)
	}
	return total, currency, nil
}

// StartCheckout records the checkout session id. The cart must not be empty.
// Any previously submitted shipping address is dropped.
func (s *ShoppingState) StartCheckout(sessionID string) error {
	if len(s.cart) == 0 {
		return ErrEmptyCart
	}
	if sessionID == "" {
		return fmt.Errorf("merchant returned no session id")
	}
	s.sessionID = sessionID
	s.shipping = nil
	return nil
}

// SetShipping stores the shipping address. A checkout session must exist.
func (s *ShoppingState) SetShipping(addr ShippingAddress) error {
	if s.sessionID == "" {
		return ErrNoSession
	}
	if missing := addr.Missing(); len(missing) > 0 {
		return fmt.Errorf("shipping address is missing %v", missing)
	}
	s.shipping = &addr
	return nil
}

// ReadyForPayment reports whether payment may be submitted
func (s *ShoppingState) ReadyForPayment() error {
	if s.shipping == nil {
		return ErrNoShipping
	}
	if s.sessionID == "" {
		return ErrNoSession
	}
	return nil
}

// RecordOrder appends order to the ledger with a frozen copy of the cart,
// then clears the cart and the checkout.
func (s *ShoppingState) RecordOrder(order Order) Order {
	order.Items = s.Cart()
	if order.Protocol == ProtocolNone {
		order.Protocol = s.protocol
	}
	if order.SessionID == "" {
		order.SessionID = s.sessionID
	}
	if s.shipping != nil {
		order.ShippingAddress = *s.shipping
	}
	s.orders = append(s.orders, order)
	s.cart = nil
	s.ResetCheckout()
	return order
}

// ResetCheckout drops the session and shipping address but keeps the cart
func (s *ShoppingState) ResetCheckout() {
	s.sessionID = ""
	s.shipping = nil
}

// Orders returns a copy of the order ledger
func (s *ShoppingState) Orders() []Order {
	return append([]Order{}, s.orders...)
}

// FindOrder returns the recorded order with id
func (s *ShoppingState) FindOrder(id string) (Order, bool) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// UpdateOrderStatus sets the status of a recorded order and returns the updated copy
func (s *ShoppingState) UpdateOrderStatus(id, status string) (Order, bool) {
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			return s.orders[i], true
		}
	}
	return Order{}, false
}
