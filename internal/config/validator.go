package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates the LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("llm provider", provider, "anthropic", "openai")
}

// ValidateTransport validates the merchant transport policy
func (v *Validator) ValidateTransport(transport string) error {
	return oneOf("merchant transport", transport, "auto", "rest", "mcp")
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, "debug", "info", "warn", "error")
}

// ValidateEndpoint validates an absolute http(s) URL
func (v *Validator) ValidateEndpoint(name, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, endpoint)
	}
	return nil
}

// ValidateConfig performs comprehensive validation. API keys are not required here;
// commands that call the provider check them on use.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if cfg.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be > 0, got %d", cfg.Agent.MaxIterations))
	}

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, err)
	}

	if err := v.ValidateTransport(cfg.Merchant.Transport); err != nil {
		errs = append(errs, err)
	}
	if cfg.Merchant.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("merchant.timeout_seconds must be > 0"))
	}

	if cfg.ACP.Enabled() {
		if err := v.ValidateEndpoint("acp.endpoint", cfg.ACP.Endpoint); err != nil {
			errs = append(errs, err)
		}
		if cfg.ACP.APIKey == "" {
			errs = append(errs, fmt.Errorf("acp.api_key is required when acp.endpoint is set"))
		}
		if cfg.ACP.TimeoutSeconds <= 0 {
			errs = append(errs, fmt.Errorf("acp.timeout_seconds must be > 0"))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		errs = append(errs, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}

	return errs
}

func oneOf(name, value string, valid ...string) error {
	for _, candidate := range valid {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", name, value, strings.Join(valid, ", "))
}
