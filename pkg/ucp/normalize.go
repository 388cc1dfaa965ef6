package ucp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type rawProfile struct {
	UCP             *rawUCP           `json:"ucp"`
	Payment         *rawPayment       `json:"payment"`
	PaymentHandlers json.RawMessage   `json:"payment_handlers"`
	SigningKeys     []json.RawMessage `json:"signing_keys"`
}

type rawUCP struct {
	Version         string          `json:"version"`
	Services        json.RawMessage `json:"services"`
	Capabilities    json.RawMessage `json:"capabilities"`
	PaymentHandlers json.RawMessage `json:"payment_handlers"`
}

type rawPayment struct {
	Handlers json.RawMessage `json:"handlers"`
}

type rawCapability struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Spec    string         `json:"spec"`
	Schema  string         `json:"schema"`
	Extends string         `json:"extends"`
	Config  map[string]any `json:"config"`
}

type rawService struct {
	Version string `json:"version"`
	Spec    string `json:"spec"`

	// flat form: one entry per transport
	Transport string `json:"transport"`
	Endpoint  string `json:"endpoint"`
	Schema    string `json:"schema"`

	// nested form
	REST *rawBinding `json:"rest"`
	MCP  *rawBinding `json:"mcp"`
	A2A  *rawBinding `json:"a2a"`
}

type rawBinding struct {
	Endpoint string `json:"endpoint"`
	URL      string `json:"url"`
	Schema   string `json:"schema"`
}

type rawHandler struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Spec    string         `json:"spec"`
	Config  map[string]any `json:"config"`
}

// ParseProfile normalizes a profile document fetched from profileURL.
// Relative endpoints resolve against profileURL.
func ParseProfile(body []byte, profileURL string) (*Discovery, error) {
	var raw rawProfile
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if raw.UCP == nil {
		return nil, ErrInvalidProfile
	}

	base, err := url.Parse(profileURL)
	if err != nil {
		return nil, fmt.Errorf("ucp: parse profile url: %w", err)
	}

	capabilities, err := NormalizeCapabilities(raw.UCP.Capabilities)
	if err != nil {
		return nil, err
	}

	services, err := normalizeServices(raw.UCP.Services, base)
	if err != nil {
		return nil, err
	}

	handlersRaw := raw.UCP.PaymentHandlers
	if isEmpty(handlersRaw) {
		handlersRaw = raw.PaymentHandlers
	}
	if isEmpty(handlersRaw) && raw.Payment != nil {
		handlersRaw = raw.Payment.Handlers
	}
	handlers, err := normalizePaymentHandlers(handlersRaw)
	if err != nil {
		return nil, err
	}

	return &Discovery{
		ProfileURL:      profileURL,
		Version:         raw.UCP.Version,
		Services:        services,
		Capabilities:    capabilities,
		PaymentHandlers: handlers,
		SigningKeys:     raw.SigningKeys,
	}, nil
}

// NormalizeCapabilities accepts either a flat array of capability objects or a
// map of capability name to version entries, and returns the flat list ordered
// by name. Entries sharing a name keep their document order.
func NormalizeCapabilities(raw json.RawMessage) ([]Capability, error) {
	raw = bytes.TrimSpace(raw)
	if isEmpty(raw) {
		return []Capability{}, nil
	}

	out := []Capability{}
	switch raw[0] {
	case '[':
		var entries []rawCapability
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("ucp: capabilities: %w", err)
		}
		for i, e := range entries {
			if e.Name == "" {
				return nil, fmt.Errorf("ucp: capabilities[%d]: missing name", i)
			}
			out = append(out, e.capability(e.Name))
		}
	case '{':
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, fmt.Errorf("ucp: capabilities: %w", err)
		}
		for _, name := range sortedKeys(byName) {
			entries, err := oneOrMany[rawCapability](byName[name])
			if err != nil {
				return nil, fmt.Errorf("ucp: capabilities[%q]: %w", name, err)
			}
			for _, e := range entries {
				out = append(out, e.capability(name))
			}
		}
	default:
		return nil, fmt.Errorf("ucp: capabilities must be an array or an object")
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e rawCapability) capability(name string) Capability {
	return Capability{
		Name:    name,
		Version: e.Version,
		Spec:    e.Spec,
		Schema:  e.Schema,
		Extends: e.Extends,
		Config:  e.Config,
	}
}

func normalizeServices(raw json.RawMessage, base *url.URL) ([]Service, error) {
	if isEmpty(raw) {
		return []Service{}, nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("ucp: services must be an object keyed by service name: %w", err)
	}

	out := []Service{}
	for _, name := range sortedKeys(byName) {
		entries, err := oneOrMany[rawService](byName[name])
		if err != nil {
			return nil, fmt.Errorf("ucp: services[%q]: %w", name, err)
		}
		for _, e := range entries {
			svc := Service{Name: name, Version: e.Version, Spec: e.Spec}

			if err := e.bind(&svc.Transports, base); err != nil {
				return nil, fmt.Errorf("ucp: services[%q]: %w", name, err)
			}
			out = append(out, svc)
		}
	}
	return out, nil
}

func (e rawService) bind(t *Transports, base *url.URL) error {
	var err error
	if e.REST != nil {
		if t.REST, err = e.REST.endpoint(base); err != nil {
			return err
		}
	}
	if e.MCP != nil {
		if t.MCP, err = e.MCP.endpoint(base); err != nil {
			return err
		}
	}
	if e.A2A != nil {
		ep, err := e.A2A.endpoint(base)
		if err != nil {
			return err
		}
		t.A2A = &AgentCard{URL: ep.URL}
	}

	if e.Transport == "" {
		return nil
	}
	flat := rawBinding{Endpoint: e.Endpoint, Schema: e.Schema}
	ep, err := flat.endpoint(base)
	if err != nil {
		return err
	}
	switch strings.ToLower(e.Transport) {
	case "rest":
		t.REST = ep
	case "mcp", "jsonrpc", "json-rpc":
		t.MCP = ep
	case "a2a":
		t.A2A = &AgentCard{URL: ep.URL}
	default:
		return fmt.Errorf("unknown transport %q", e.Transport)
	}
	return nil
}

func (b rawBinding) endpoint(base *url.URL) (*Endpoint, error) {
	ref := b.Endpoint
	if ref == "" {
		ref = b.URL
	}
	if ref == "" {
		return nil, fmt.Errorf("binding has no endpoint")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", ref, err)
	}
	return &Endpoint{URL: base.ResolveReference(u).String(), Schema: b.Schema}, nil
}

func normalizePaymentHandlers(raw json.RawMessage) ([]PaymentHandler, error) {
	raw = bytes.TrimSpace(raw)
	if isEmpty(raw) {
		return nil, nil
	}

	var out []PaymentHandler
	switch raw[0] {
	case '[':
		var entries []rawHandler
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("ucp: payment handlers: %w", err)
		}
		for _, e := range entries {
			out = append(out, e.handler(""))
		}
	case '{':
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, fmt.Errorf("ucp: payment handlers: %w", err)
		}
		for _, name := range sortedKeys(byName) {
			entries, err := oneOrMany[rawHandler](byName[name])
			if err != nil {
				return nil, fmt.Errorf("ucp: payment handlers[%q]: %w", name, err)
			}
			for _, e := range entries {
				out = append(out, e.handler(name))
			}
		}
	default:
		return nil, fmt.Errorf("ucp: payment handlers must be an array or an object")
	}
	return out, nil
}

func (e rawHandler) handler(key string) PaymentHandler {
	h := PaymentHandler{ID: e.ID, Name: e.Name, Version: e.Version, Spec: e.Spec, Config: e.Config}
	if h.Name == "" {
		h.Name = key
	}
	if h.ID == "" {
		h.ID = h.Name
	}
	return h
}

func oneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if isEmpty(raw) {
		return nil, nil
	}
	if raw[0] == '[' {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
