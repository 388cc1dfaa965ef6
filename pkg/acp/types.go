package acp

// Status is a checkout session status
type Status string

const (
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	StatusReadyForPayment    Status = "ready_for_payment"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
)

// IsTerminal reports whether no further action is allowed
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Total types reported on a session
const (
	TotalSubtotal    = "subtotal"
	TotalTax         = "tax"
	TotalFulfillment = "fulfillment"
	TotalTotal       = "total"
)

// Item is a product reference with quantity
type Item struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// LineItem is a priced item on a session
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	Name       string `json:"name,omitempty"`
	BaseAmount Amount `json:"base_amount"`
	Subtotal   Amount `json:"subtotal"`
	Tax        Amount `json:"tax"`
	Total      Amount `json:"total"`
}

// Total is one entry of a session's totals
type Total struct {
	Type        string `json:"type"`
	DisplayText string `json:"display_text"`
	Amount      Amount `json:"amount"`
}

// Address is a fulfillment address
type Address struct {
	Name       string `json:"name"`
	LineOne    string `json:"line_one"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// PaymentProvider describes how the merchant accepts payment
type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

// Message is an informational or error message attached to a session
type Message struct {
	Type    string `json:"type"` // info, error
	Code    string `json:"code,omitempty"`
	Content string `json:"content"`
}

// Order is created when a session completes
type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url,omitempty"`
}

// CheckoutSession is the server-owned session resource
type CheckoutSession struct {
	ID                 string           `json:"id"`
	Status             Status           `json:"status"`
	Currency           string           `json:"currency"`
	LineItems          []LineItem       `json:"line_items"`
	FulfillmentAddress *Address         `json:"fulfillment_address,omitempty"`
	PaymentProvider    *PaymentProvider `json:"payment_provider,omitempty"`
	Totals             []Total          `json:"totals"`
	Messages           []Message        `json:"messages,omitempty"`
	Order              *Order           `json:"order,omitempty"`
}

// TotalOf returns the amount of the total of the given type, or 0
func (s *CheckoutSession) TotalOf(kind string) Amount {
	for _, t := range s.Totals {
		if t.Type == kind {
			return t.Amount
		}
	}
	return 0
}

// ErrorMessage returns the content of the first error message, or ""
func (s *CheckoutSession) ErrorMessage() string {
	for _, m := range s.Messages {
		if m.Type == "error" {
			return m.Content
		}
	}
	return ""
}

// CreateSessionRequest creates a session
type CreateSessionRequest struct {
	Items              []Item   `json:"items"`
	FulfillmentAddress *Address `json:"fulfillment_address,omitempty"`
}

// UpdateSessionRequest changes items and/or the fulfillment address
type UpdateSessionRequest struct {
	Items              []Item   `json:"items,omitempty"`
	FulfillmentAddress *Address `json:"fulfillment_address,omitempty"`
}

// PaymentData carries an opaque payment token
type PaymentData struct {
	Token          string   `json:"token"`
	Provider       string   `json:"provider"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

// CompleteSessionRequest completes a session
type CompleteSessionRequest struct {
	PaymentData PaymentData `json:"payment_data"`
}

// Product is an entry of the merchant's product feed
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       Amount `json:"price"`
	Currency    string `json:"currency"`
}

// ProductList is the product feed response
type ProductList struct {
	Products []Product `json:"products"`
}
