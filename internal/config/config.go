package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main shopagent configuration
type Config struct {
	// Agent loop
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// LLM provider
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Discovery-protocol merchant client
	Merchant MerchantConfig `json:"merchant" mapstructure:"merchant"`

	// Session-checkout merchant client
	ACP ACPConfig `json:"acp" mapstructure:"acp"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// AgentConfig controls the orchestrator loop
type AgentConfig struct {
	MaxIterations int    `json:"max_iterations" mapstructure:"max_iterations"`
	SystemPrompt  string `json:"system_prompt" mapstructure:"system_prompt"`
	Stream        bool   `json:"stream" mapstructure:"stream"`
}

// LLMConfig selects and configures the model provider
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// MerchantConfig configures outbound discovery-protocol calls
type MerchantConfig struct {
	Transport      string `json:"transport" mapstructure:"transport"` // auto, rest, mcp
	UserAgent      string `json:"user_agent" mapstructure:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout
func (m MerchantConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// ACPConfig configures the session-checkout client. An empty endpoint disables it.
type ACPConfig struct {
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	APIVersion     string `json:"api_version" mapstructure:"api_version"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Enabled reports whether a session-checkout endpoint is configured
func (a ACPConfig) Enabled() bool {
	return a.Endpoint != ""
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// MetricsConfig exposes Prometheus metrics on Addr when set
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations: 20,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Merchant: MerchantConfig{
			Transport:      "auto",
			UserAgent:      "shopagent/1.0",
			TimeoutSeconds: 30,
		},
		ACP: ACPConfig{
			APIVersion:     "2025-09-29",
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "shopagent",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return nil
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.ACP.APIKey = mask(c.ACP.APIKey)

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
