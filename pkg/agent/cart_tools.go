package agent

import (
	"context"
	"fmt"

	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/acp"
)

func (o *Orchestrator) addToCart(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "productId")
	if id == "" {
		return nil, fmt.Errorf("productId is required")
	}
	qty, err := argInt(args, "quantity", 1)
	if err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := o.lookupProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	line, err := o.state.AddItem(CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  qty,
		UnitPrice: product.Price,
		Currency:  product.Currency,
	})
	if err != nil {
		return nil, err
	}
	o.cartChanged(ctx)

	view, err := o.cartView()
	if err != nil {
		return nil, err
	}
	view["added"] = map[string]any{"productId": line.ProductID, "name": line.Name, "quantity": qty}
	return view, nil
}

func (o *Orchestrator) viewCart(ctx context.Context, args map[string]any) (any, error) {
	return o.cartView()
}

func (o *Orchestrator) removeFromCart(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "productId")
	if id == "" {
		return nil, fmt.Errorf("productId is required")
	}
	qty, err := argInt(args, "quantity", 0)
	if err != nil {
		return nil, err
	}
	if err := o.state.RemoveItem(id, qty); err != nil {
		return nil, err
	}
	o.cartChanged(ctx)

	view, err := o.cartView()
	if err != nil {
		return nil, err
	}
	view["removed"] = id
	return view, nil
}

// cartChanged drops an active checkout, whose items no longer match the cart.
// A session-checkout session is canceled on the merchant as well.
func (o *Orchestrator) cartChanged(ctx context.Context) {
	id := o.state.SessionID()
	if id == "" {
		return
	}
	if o.state.Protocol() == ProtocolACP && o.acp != nil {
		if _, err := o.acp.CancelSession(ctx, id); err != nil {
			logger := tracing.LoggerFromContext(ctx, o.logger)
			logger.Warn().Err(err).Str("session_id", id).Msg("failed to cancel stale checkout session")
		}
	}
	o.state.ResetCheckout()
}

func (o *Orchestrator) cartView() (map[string]any, error) {
	subtotal, currency, err := o.state.Subtotal()
	if err != nil {
		return nil, err
	}
	items := o.state.Cart()
	return map[string]any{
		"items":     items,
		"itemCount": o.state.ItemCount(),
		"lineCount": len(items),
		"subtotal":  acp.FormatMinor(subtotal),
		"currency":  currency,
	}, nil
}
