package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/acp"
	"github.com/harun/shopagent/pkg/ucp"
)

const orderIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ucpCheckout is the discovery-protocol checkout session
type ucpCheckout struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	Subtotal  string `json:"subtotal"`
	Currency  string `json:"currency"`
}

// ucpOrder is the discovery-protocol order
type ucpOrder struct {
	OrderID  string `json:"orderId"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	Subtotal string `json:"subtotal"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

func (o *Orchestrator) initiateCheckout(ctx context.Context, args map[string]any) (any, error) {
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}
	cart := o.state.Cart()
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}

	var out map[string]any
	switch p {
	case ProtocolACP:
		items := make([]acp.Item, 0, len(cart))
		for _, it := range cart {
			items = append(items, acp.Item{ID: it.ProductID, Quantity: it.Quantity})
		}
		session, err := o.acp.CreateSession(ctx, acp.CreateSessionRequest{Items: items})
		if err != nil {
			return nil, err
		}
		if err := o.state.StartCheckout(session.ID); err != nil {
			return nil, err
		}
		out = map[string]any{
			"sessionId": session.ID,
			"status":    session.Status,
			"subtotal":  acp.FormatMinor(session.TotalOf(acp.TotalSubtotal)),
			"total":     acp.FormatMinor(session.TotalOf(acp.TotalTotal)),
			"currency":  session.Currency,
		}

	default:
		items := make([]map[string]any, 0, len(cart))
		for _, it := range cart {
			items = append(items, map[string]any{"productId": it.ProductID, "quantity": it.Quantity})
		}
		result, err := o.ucp.CallAPI(ctx, "/checkout-sessions", ucp.CallOptions{
			Method: "POST",
			Body:   map[string]any{"items": items},
		})
		if err != nil {
			return nil, err
		}
		var session ucpCheckout
		if err := decodeInto(result, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		if session.SessionID == "" {
			session.SessionID = session.ID
		}
		if err := o.state.StartCheckout(session.SessionID); err != nil {
			return nil, err
		}
		out = map[string]any{
			"sessionId": session.SessionID,
			"status":    session.Status,
			"subtotal":  session.Subtotal,
			"currency":  session.Currency,
		}
	}

	out["itemCount"] = o.state.ItemCount()
	out["nextStep"] = "shipping"
	observability.RecordCheckout(ctx, observability.CheckoutEvent{
		Action:    observability.AuditSessionCreated,
		RunID:     tracing.GetRunID(ctx),
		Protocol:  string(p),
		Merchant:  o.state.Merchant(),
		SessionID: o.state.SessionID(),
	})
	return out, nil
}

func (o *Orchestrator) submitShipping(ctx context.Context, args map[string]any) (any, error) {
	if o.state.SessionID() == "" {
		return nil, ErrNoSession
	}
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}

	addr := ShippingAddress{
		Name:       argString(args, "name"),
		Line1:      argString(args, "line1"),
		Line2:      argString(args, "line2"),
		City:       argString(args, "city"),
		State:      argString(args, "state"),
		PostalCode: argString(args, "postalCode"),
		Country:    argString(args, "country"),
	}
	if missing := addr.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("shipping address is missing %v", missing)
	}

	out := map[string]any{
		"sessionId":       o.state.SessionID(),
		"shippingAddress": addr,
		"nextStep":        "payment",
	}

	if p == ProtocolACP {
		session, err := o.acp.UpdateSession(ctx, o.state.SessionID(), acp.UpdateSessionRequest{
			FulfillmentAddress: toACPAddress(addr),
		})
		if err != nil {
			return nil, err
		}
		out["status"] = session.Status
		out["total"] = acp.FormatMinor(session.TotalOf(acp.TotalTotal))
		out["currency"] = session.Currency
	}

	if err := o.state.SetShipping(addr); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) submitPayment(ctx context.Context, args map[string]any) (any, error) {
	if err := o.state.ReadyForPayment(); err != nil {
		return nil, err
	}
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}

	method := argString(args, "paymentMethod")
	token := argString(args, "paymentToken")
	if token == "" {
		return nil, fmt.Errorf("paymentToken is required")
	}

	var order Order
	switch p {
	case ProtocolACP:
		order, err = o.payACP(ctx, method, token)
	default:
		order, err = o.payUCP(ctx, method, token)
	}

	audit := observability.CheckoutEvent{
		RunID:     tracing.GetRunID(ctx),
		Protocol:  string(p),
		Merchant:  o.state.Merchant(),
		SessionID: o.state.SessionID(),
	}
	if err != nil {
		observability.RecordOrder(string(p), false)
		audit.Action, audit.Err = observability.AuditPaymentFailed, err
		observability.RecordCheckout(ctx, audit)
		return nil, err
	}

	order.CreatedAt = o.clock()
	order = o.state.RecordOrder(order)

	observability.RecordOrder(string(p), true)
	audit.Action = observability.AuditOrderPlaced
	audit.SessionID, audit.OrderID = order.SessionID, order.ID
	audit.Total, audit.Currency = order.Total, order.Currency
	observability.RecordCheckout(ctx, audit)

	return map[string]any{
		"success":  true,
		"orderId":  order.ID,
		"status":   order.Status,
		"subtotal": order.Subtotal,
		"total":    order.Total,
		"currency": order.Currency,
		"protocol": order.Protocol,
	}, nil
}

func (o *Orchestrator) payUCP(ctx context.Context, method, token string) (Order, error) {
	sessionID := o.state.SessionID()
	result, err := o.ucp.CallAPI(ctx, "/checkout-sessions/"+url.PathEscape(sessionID)+"/complete", ucp.CallOptions{
		Method: "POST",
		Body: map[string]any{
			"paymentMethod":   method,
			"paymentToken":    token,
			"shippingAddress": o.state.Shipping(),
		},
	})
	if err != nil {
		return Order{}, err
	}

	var placed ucpOrder
	if err := decodeInto(result, &placed); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	if placed.OrderID == "" {
		placed.OrderID = placed.ID
	}
	if placed.OrderID == "" {
		return Order{}, fmt.Errorf("merchant returned no order id")
	}
	if placed.Total == "" {
		placed.Total = placed.Subtotal
	}
	return Order{
		ID:       placed.OrderID,
		Status:   placed.Status,
		Subtotal: placed.Subtotal,
		Total:    placed.Total,
		Currency: placed.Currency,
	}, nil
}

// payACP completes the session. After a decline the merchant moved the session
// back to not_ready_for_payment, so the stored address is applied again first.
func (o *Orchestrator) payACP(ctx context.Context, method, token string) (Order, error) {
	sessionID := o.state.SessionID()
	if status, ok := o.acp.Status(sessionID); ok && status == acp.StatusNotReadyForPayment {
		if _, err := o.acp.UpdateSession(ctx, sessionID, acp.UpdateSessionRequest{
			FulfillmentAddress: toACPAddress(*o.state.Shipping()),
		}); err != nil {
			return Order{}, fmt.Errorf("reapply shipping address: %w", err)
		}
	}

	session, err := o.acp.CompleteSession(ctx, sessionID, acp.CompleteSessionRequest{
		PaymentData: acp.PaymentData{Token: token, Provider: method},
	})
	if err != nil {
		if errors.Is(err, acp.ErrPaymentDeclined) {
			return Order{}, fmt.Errorf("payment declined; the cart and checkout session are kept for a retry: %w", err)
		}
		return Order{}, err
	}

	orderID := ""
	if session.Order != nil {
		orderID = session.Order.ID
	}
	if orderID == "" {
		orderID = "acp_" + gonanoid.MustGenerate(orderIDAlphabet, 14)
	}
	return Order{
		ID:       orderID,
		Status:   string(session.Status),
		Subtotal: acp.FormatMinor(session.TotalOf(acp.TotalSubtotal)),
		Total:    acp.FormatMinor(session.TotalOf(acp.TotalTotal)),
		Currency: session.Currency,
	}, nil
}

func (o *Orchestrator) getOrderStatus(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "orderId")
	if id == "" {
		return nil, fmt.Errorf("orderId is required")
	}
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}

	if p == ProtocolUCP {
		return o.ucp.CallAPI(ctx, "/orders/"+url.PathEscape(id), ucp.CallOptions{Method: "GET"})
	}

	order, ok := o.state.FindOrder(id)
	if !ok {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	if o.acp == nil || order.SessionID == "" {
		return order, nil
	}

	// the merchant owns the status; the ledger copy is only a fallback
	session, err := o.acp.GetSession(ctx, order.SessionID)
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, o.logger)
		logger.Warn().Err(err).Str("order_id", id).Str("session_id", order.SessionID).Msg("order status refresh failed, using recorded status")
		return order, nil
	}
	if updated, ok := o.state.UpdateOrderStatus(id, string(session.Status)); ok {
		order = updated
	}
	return order, nil
}

func toACPAddress(a ShippingAddress) *acp.Address {
	return &acp.Address{
		Name:       a.Name,
		LineOne:    a.Line1,
		LineTwo:    a.Line2,
		City:       a.City,
		State:      a.State,
		Country:    a.Country,
		PostalCode: a.PostalCode,
	}
}
