package testmerchant

import (
	"encoding/json"
	"net/http"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/shopagent/pkg/acp"
)

// Payment tokens understood by both merchants
const (
	SuccessToken = "tok_mock_success"
	FailureToken = "tok_mock_failure"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Product is a catalog entry
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       acp.Amount
	Currency    string
}

// DefaultCatalog returns the catalog both merchants serve unless overridden
func DefaultCatalog() []Product {
	return []Product{
		{ID: "prod_kb", Name: "Mechanical Keyboard", Description: "Tenkeyless mechanical keyboard with brown switches", Category: "peripherals", Price: 7999, Currency: "USD"},
		{ID: "prod_mouse", Name: "Wireless Mouse", Description: "Ergonomic wireless mouse", Category: "peripherals", Price: 2999, Currency: "USD"},
		{ID: "prod_cable", Name: "USB-C Cable", Description: "Braided USB-C to USB-C cable, 2m", Category: "accessories", Price: 999, Currency: "USD"},
	}
}

type catalog []Product

func (c catalog) find(id string) (Product, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// search matches query against name, description and category, case-insensitively
func (c catalog) search(query, category string) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	out := []Product{}
	for _, p := range c {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if query != "" {
			haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func newID(prefix string) string {
	return prefix + gonanoid.MustGenerate(idAlphabet, 14)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
