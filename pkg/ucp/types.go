package ucp

import "encoding/json"

// Transport policies accepted by CallAPI
const (
	TransportAuto = "auto"
	TransportREST = "rest"
	TransportMCP  = "mcp"
)

// Well-known profile paths, probed in order
var WellKnownPaths = []string{"/.well-known/ucp", "/.well-known/ucp.json"}

// Discovery is the normalized merchant profile
type Discovery struct {
	Domain          string            `json:"domain"`
	ProfileURL      string            `json:"profileUrl"`
	Version         string            `json:"version"`
	Services        []Service         `json:"services"`
	Capabilities    []Capability      `json:"capabilities"`
	PaymentHandlers []PaymentHandler  `json:"paymentHandlers,omitempty"`
	SigningKeys     []json.RawMessage `json:"signingKeys,omitempty"`
}

// Capability is one advertised capability version
type Capability struct {
	Name    string         `json:"name"`
	Version string         `json:"version,omitempty"`
	Spec    string         `json:"spec,omitempty"`
	Schema  string         `json:"schema,omitempty"`
	Extends string         `json:"extends,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// Service is one service entry with the transports it can be reached over
type Service struct {
	Name       string     `json:"name"`
	Version    string     `json:"version,omitempty"`
	Spec       string     `json:"spec,omitempty"`
	Transports Transports `json:"transports"`
}

// Transports holds the per-transport bindings of a service. Any may be nil.
type Transports struct {
	REST *Endpoint  `json:"rest,omitempty"`
	MCP  *Endpoint  `json:"mcp,omitempty"`
	A2A  *AgentCard `json:"a2a,omitempty"`
}

// Endpoint is an absolute endpoint URL and optional schema reference
type Endpoint struct {
	URL    string `json:"url"`
	Schema string `json:"schema,omitempty"`
}

// AgentCard references an agent-to-agent card
type AgentCard struct {
	URL string `json:"url"`
}

// PaymentHandler is a payment handler advertised by the merchant
type PaymentHandler struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Version string         `json:"version,omitempty"`
	Spec    string         `json:"spec,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// CallOptions configures one CallAPI request
type CallOptions struct {
	// Method is the HTTP method; GET when empty.
	Method string
	// Body is JSON-encoded for REST and merged into params for JSON-RPC.
	Body any
	// Transport overrides the client's policy when set.
	Transport string
}

// RESTEndpoint returns the first REST endpoint across services, or ""
func (d *Discovery) RESTEndpoint() string {
	if d == nil {
		return ""
	}
	for _, s := range d.Services {
		if s.Transports.REST != nil {
			return s.Transports.REST.URL
		}
	}
	return ""
}

// RPCEndpoint returns the first JSON-RPC (MCP) endpoint across services, or ""
func (d *Discovery) RPCEndpoint() string {
	if d == nil {
		return ""
	}
	for _, s := range d.Services {
		if s.Transports.MCP != nil {
			return s.Transports.MCP.URL
		}
	}
	return ""
}

// Capability returns the first capability named name
func (d *Discovery) Capability(name string) (Capability, bool) {
	if d == nil {
		return Capability{}, false
	}
	for _, c := range d.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}
