package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harun/shopagent/pkg/plugin"
	"github.com/harun/shopagent/pkg/tools"
)

// command executes one tool call
type command func(ctx context.Context, args map[string]any) (any, error)

func pluginCommand(h plugin.Handler) command {
	return command(h)
}

func (o *Orchestrator) builtinCommands() map[string]command {
	return map[string]command{
		tools.DiscoverMerchant: o.discoverMerchant,
		tools.ListCapabilities: o.listCapabilities,
		tools.BrowseProducts:   o.browseProducts,
		tools.SearchProducts:   o.searchProducts,
		tools.GetProduct:       o.getProduct,
		tools.AddToCart:        o.addToCart,
		tools.ViewCart:         o.viewCart,
		tools.RemoveFromCart:   o.removeFromCart,
		tools.InitiateCheckout: o.initiateCheckout,
		tools.SubmitShipping:   o.submitShipping,
		tools.SubmitPayment:    o.submitPayment,
		tools.GetOrderStatus:   o.getOrderStatus,
	}
}

// requireProtocol returns the bound protocol or ErrNoProtocol
func (o *Orchestrator) requireProtocol() (Protocol, error) {
	p := o.state.Protocol()
	if p == ProtocolNone {
		return p, ErrNoProtocol
	}
	return p, nil
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// argInt reads an integer argument, returning def when it is absent
func argInt(args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

// decodeInto converts a decoded JSON value into out
func decodeInto(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
