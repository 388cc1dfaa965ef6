package tools

// Built-in tool names exposed to the model.
const (
	DiscoverMerchant = "discover_merchant"
	ListCapabilities = "list_capabilities"
	BrowseProducts   = "browse_products"
	SearchProducts   = "search_products"
	GetProduct       = "get_product"
	AddToCart        = "add_to_cart"
	ViewCart         = "view_cart"
	RemoveFromCart   = "remove_from_cart"
	InitiateCheckout = "initiate_checkout"
	SubmitShipping   = "submit_shipping"
	SubmitPayment    = "submit_payment"
	GetOrderStatus   = "get_order_status"
)

// Definition describes a tool the model can call.
// Parameters is a JSON Schema object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Builtins returns the built-in tool catalog. Each call returns a fresh copy.
func Builtins() []Definition {
	return []Definition{
		{
			Name:        DiscoverMerchant,
			Description: "Discover a merchant by domain and bind the commerce protocol it speaks. Call this before any catalog or checkout tool.",
			Parameters: object(map[string]any{
				"domain": str("Merchant domain or base URL, e.g. shop.example.com"),
			}, "domain"),
		},
		{
			Name:        ListCapabilities,
			Description: "List the capabilities advertised by the discovered merchant.",
			Parameters:  object(map[string]any{}),
		},
		{
			Name:        BrowseProducts,
			Description: "Browse the merchant's product catalog.",
			Parameters: object(map[string]any{
				"category": str("Optional category filter"),
				"limit":    integer("Maximum number of products to return", 1),
			}),
		},
		{
			Name:        SearchProducts,
			Description: "Search the merchant's catalog by free-text query.",
			Parameters: object(map[string]any{
				"query": str("Search query"),
				"limit": integer("Maximum number of products to return", 1),
			}, "query"),
		},
		{
			Name:        GetProduct,
			Description: "Get full details for one product.",
			Parameters: object(map[string]any{
				"productId": str("Product identifier"),
			}, "productId"),
		},
		{
			Name:        AddToCart,
			Description: "Add a product to the cart. Adding a product already in the cart increases its quantity.",
			Parameters: object(map[string]any{
				"productId": str("Product identifier"),
				"quantity":  integer("Quantity to add (default 1)", 1),
			}, "productId"),
		},
		{
			Name:        ViewCart,
			Description: "Show the current cart contents and subtotal.",
			Parameters:  object(map[string]any{}),
		},
		{
			Name:        RemoveFromCart,
			Description: "Remove a product from the cart, or reduce its quantity.",
			Parameters: object(map[string]any{
				"productId": str("Product identifier"),
				"quantity":  integer("Quantity to remove; omit to remove the whole line", 1),
			}, "productId"),
		},
		{
			Name:        InitiateCheckout,
			Description: "Start checkout for the current cart. The cart must not be empty.",
			Parameters:  object(map[string]any{}),
		},
		{
			Name:        SubmitShipping,
			Description: "Submit the shipping address for the active checkout session.",
			Parameters: object(map[string]any{
				"name":       str("Recipient full name"),
				"line1":      str("Address line 1"),
				"line2":      str("Address line 2"),
				"city":       str("City"),
				"state":      str("State or region"),
				"postalCode": str("Postal code"),
				"country":    str("ISO country code"),
			}, "name", "line1", "city", "state", "postalCode", "country"),
		},
		{
			Name:        SubmitPayment,
			Description: "Pay for the active checkout session. Shipping must be submitted first.",
			Parameters: object(map[string]any{
				"paymentMethod": str("Payment method identifier, e.g. card or mock"),
				"paymentToken":  str("Opaque payment token"),
			}, "paymentMethod", "paymentToken"),
		},
		{
			Name:        GetOrderStatus,
			Description: "Look up the status of a placed order.",
			Parameters: object(map[string]any{
				"orderId": str("Order identifier"),
			}, "orderId"),
		},
	}
}

// IsBuiltin reports whether name is a built-in tool.
func IsBuiltin(name string) bool {
	for _, def := range Builtins() {
		if def.Name == name {
			return true
		}
	}
	return false
}

// Names returns the tool names of defs in order.
func Names(defs []Definition) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integer(description string, minimum int) map[string]any {
	return map[string]any{"type": "integer", "description": description, "minimum": minimum}
}
