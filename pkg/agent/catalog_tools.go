package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/acp"
	"github.com/harun/shopagent/pkg/ucp"
)

// Product is the protocol-neutral product view returned to the model.
// Price is a decimal string in Currency.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
}

// acpCapabilities are the operations a session-checkout merchant always offers
var acpCapabilities = []string{
	"checkout_sessions.create",
	"checkout_sessions.update",
	"checkout_sessions.complete",
	"checkout_sessions.cancel",
	"product_feed",
}

func (o *Orchestrator) discoverMerchant(ctx context.Context, args map[string]any) (any, error) {
	domain := argString(args, "domain")
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if bound := o.state.Protocol(); bound != ProtocolNone && o.state.Merchant() != domain {
		return nil, fmt.Errorf("%w (%s via %s)", ErrProtocolBound, o.state.Merchant(), bound)
	}

	logger := tracing.LoggerFromContext(ctx, o.logger)

	d, err := o.ucp.Discover(ctx, domain)
	if err == nil {
		if err := o.state.BindProtocol(ProtocolUCP, domain); err != nil {
			return nil, err
		}
		logger.Info().Str("merchant", domain).Str("protocol", string(ProtocolUCP)).Msg("merchant bound")
		return ucpSummary(domain, d), nil
	}

	if o.acp == nil {
		return nil, err
	}
	logger.Debug().Err(err).Str("merchant", domain).Msg("ucp discovery failed, probing acp endpoint")

	if herr := o.acp.Health(ctx); herr != nil {
		if _, perr := o.acp.ListProducts(ctx, ""); perr != nil {
			return nil, fmt.Errorf("%v; acp endpoint %s unreachable: %w", err, o.acp.Endpoint(), perr)
		}
	}
	if err := o.state.BindProtocol(ProtocolACP, domain); err != nil {
		return nil, err
	}
	logger.Info().Str("merchant", domain).Str("protocol", string(ProtocolACP)).Msg("merchant bound")

	return map[string]any{
		"protocol":     ProtocolACP,
		"domain":       domain,
		"endpoint":     o.acp.Endpoint(),
		"capabilities": acpCapabilities,
	}, nil
}

func ucpSummary(domain string, d *ucp.Discovery) map[string]any {
	caps := make([]string, 0, len(d.Capabilities))
	for _, c := range d.Capabilities {
		caps = append(caps, c.Name)
	}
	handlers := make([]string, 0, len(d.PaymentHandlers))
	for _, h := range d.PaymentHandlers {
		handlers = append(handlers, h.ID)
	}
	return map[string]any{
		"protocol":     ProtocolUCP,
		"domain":       domain,
		"version":      d.Version,
		"capabilities": caps,
		"transports": map[string]bool{
			"rest": d.RESTEndpoint() != "",
			"mcp":  d.RPCEndpoint() != "",
		},
		"paymentHandlers": handlers,
	}
}

func (o *Orchestrator) listCapabilities(ctx context.Context, args map[string]any) (any, error) {
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}
	if p == ProtocolACP {
		return map[string]any{"protocol": p, "capabilities": acpCapabilities}, nil
	}
	return map[string]any{"protocol": p, "capabilities": o.ucp.Capabilities()}, nil
}

func (o *Orchestrator) browseProducts(ctx context.Context, args map[string]any) (any, error) {
	limit, err := argInt(args, "limit", 0)
	if err != nil {
		return nil, err
	}
	return o.listProducts(ctx, "", argString(args, "category"), limit)
}

func (o *Orchestrator) searchProducts(ctx context.Context, args map[string]any) (any, error) {
	query := argString(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit, err := argInt(args, "limit", 0)
	if err != nil {
		return nil, err
	}
	return o.listProducts(ctx, query, "", limit)
}

func (o *Orchestrator) listProducts(ctx context.Context, query, category string, limit int) (any, error) {
	p, err := o.requireProtocol()
	if err != nil {
		return nil, err
	}

	var products []Product
	switch p {
	case ProtocolACP:
		feed, err := o.acp.ListProducts(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, item := range feed {
			if category != "" && !strings.EqualFold(item.Category, category) {
				continue
			}
			products = append(products, fromACPProduct(item))
		}
	default:
		q := url.Values{}
		path := "/products"
		if query != "" {
			path = "/products/search"
			q.Set("q", query)
		}
		if category != "" {
			q.Set("category", category)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if enc := q.Encode(); enc != "" {
			path += "?" + enc
		}

		result, err := o.ucp.CallAPI(ctx, path, ucp.CallOptions{Method: "GET"})
		if err != nil {
			return nil, err
		}
		if products, err = ucpProducts(result); err != nil {
			return nil, err
		}
	}

	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	if products == nil {
		products = []Product{}
	}
	return map[string]any{"products": products, "count": len(products)}, nil
}

func (o *Orchestrator) getProduct(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "productId")
	if id == "" {
		return nil, fmt.Errorf("productId is required")
	}
	return o.lookupProduct(ctx, id)
}

// lookupProduct fetches one product through the bound protocol
func (o *Orchestrator) lookupProduct(ctx context.Context, id string) (Product, error) {
	p, err := o.requireProtocol()
	if err != nil {
		return Product{}, err
	}

	if p == ProtocolACP {
		item, err := o.acp.GetProduct(ctx, id)
		if err != nil {
			return Product{}, err
		}
		return fromACPProduct(*item), nil
	}

	result, err := o.ucp.CallAPI(ctx, "/products/"+url.PathEscape(id), ucp.CallOptions{Method: "GET"})
	if err != nil {
		return Product{}, err
	}
	if m, ok := result.(map[string]any); ok {
		if inner, ok := m["product"]; ok {
			result = inner
		}
	}
	var raw ucpProduct
	if err := decodeInto(result, &raw); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	if raw.ID == "" {
		return Product{}, fmt.Errorf("merchant returned no product for %s", id)
	}
	return raw.view(), nil
}

func fromACPProduct(p acp.Product) Product {
	return Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       acp.FormatMinor(p.Price),
		Currency:    p.Currency,
	}
}

// ucpProduct tolerates prices sent as strings or numbers
type ucpProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       json.RawMessage `json:"price"`
	Currency    string          `json:"currency"`
}

func (p ucpProduct) view() Product {
	name := p.Name
	if name == "" {
		name = p.Title
	}
	price := string(bytes.Trim(p.Price, `"`))
	if price == "null" {
		price = ""
	}
	return Product{
		ID:          p.ID,
		Name:        name,
		Description: p.Description,
		Category:    p.Category,
		Price:       price,
		Currency:    p.Currency,
	}
}

// ucpProducts accepts either {"products": [...]} or a bare array
func ucpProducts(result any) ([]Product, error) {
	if m, ok := result.(map[string]any); ok {
		result = m["products"]
	}
	var raw []ucpProduct
	if result != nil {
		if err := decodeInto(result, &raw); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
	}
	out := make([]Product, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.view())
	}
	return out, nil
}
