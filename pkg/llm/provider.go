package llm

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/harun/shopagent/pkg/agent"
)

// Supported providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config selects a provider and its request defaults
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64

	// HTTPClient overrides the SDK's default client
	HTTPClient *http.Client

	// MaxRetries overrides the SDK retry count when non-nil
	MaxRetries *int
}

// New creates the adapter for cfg.Provider
func New(cfg Config) (agent.Adapter, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// parseArguments decodes a JSON object of tool arguments. Empty input yields an empty map.
func parseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" || raw == "null" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	return args, nil
}

// requiredFields reads the "required" list of a schema built either in Go or from JSON
func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
