package ucp

import (
	"encoding/json"
	"net/url"
	"strings"
)

// RPCMethodFor translates a REST-style request into a JSON-RPC method name and params.
//
//	GET  /products                          list_products
//	GET  /products?q=…, /products/search?q= search_products{query}
//	GET  /products/{id}                     get_product{id}
//	POST /checkout-sessions                 create_checkout{…body}
//	POST /checkout-sessions/{id}/complete   complete_checkout{id, …body}
//	GET  /orders/{id}                       get_order{id}
//
// Anything else maps to <method>_<segments> with query and body merged into params.
func RPCMethodFor(method, path string, body any) (string, map[string]any) {
	method = strings.ToUpper(method)
	if method == "" {
		method = "GET"
	}

	rawPath, rawQuery, _ := strings.Cut(path, "?")
	query, _ := url.ParseQuery(rawQuery)

	// split before unescaping so an escaped "/" stays inside its segment
	var segs []string
	for _, s := range strings.Split(rawPath, "/") {
		if s == "" {
			continue
		}
		if u, err := url.PathUnescape(s); err == nil {
			s = u
		}
		segs = append(segs, s)
	}

	params := queryParams(query)

	switch {
	case method == "GET" && len(segs) == 1 && segs[0] == "products":
		if q := query.Get("q"); q != "" {
			delete(params, "q")
			params["query"] = q
			return "search_products", params
		}
		return "list_products", params

	case method == "GET" && len(segs) == 2 && segs[0] == "products" && segs[1] == "search":
		delete(params, "q")
		params["query"] = query.Get("q")
		return "search_products", params

	case method == "GET" && len(segs) == 2 && segs[0] == "products":
		params["id"] = segs[1]
		return "get_product", params

	case method == "POST" && len(segs) == 1 && segs[0] == "checkout-sessions":
		mergeBody(params, body)
		return "create_checkout", params

	case method == "POST" && len(segs) == 3 && segs[0] == "checkout-sessions" && segs[2] == "complete":
		mergeBody(params, body)
		params["id"] = segs[1]
		return "complete_checkout", params

	case method == "GET" && len(segs) == 2 && segs[0] == "orders":
		params["id"] = segs[1]
		return "get_order", params
	}

	parts := append([]string{strings.ToLower(method)}, segs...)
	name := strings.ReplaceAll(strings.Join(parts, "_"), "-", "_")
	mergeBody(params, body)
	return name, params
}

func queryParams(query url.Values) map[string]any {
	params := make(map[string]any, len(query))
	for k, v := range query {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// mergeBody copies object fields of body into params. Non-object bodies go under "body".
func mergeBody(params map[string]any, body any) {
	if body == nil {
		return
	}
	fields, ok := body.(map[string]any)
	if !ok {
		raw, err := json.Marshal(body)
		if err != nil || json.Unmarshal(raw, &fields) != nil {
			params["body"] = body
			return
		}
	}
	for k, v := range fields {
		params[k] = v
	}
}
