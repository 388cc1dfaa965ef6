package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/shopagent/internal/config"
	"github.com/harun/shopagent/internal/logger"
	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/acp"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/ucp"
)

// app holds what every command needs once config is loaded
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *http.Server
}

// setup loads and validates config, then starts logging, tracing, the audit
// log and the metrics listener. close must be called when the command ends.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, err := logger.New(logger.FromConfig(cfg.Logging, cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := &app{cfg: cfg, log: l}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	observability.EnsureRegistered()
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		a.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger().Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server stopped")
			}
		}()
		a.logger().Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
	}

	return a, nil
}

func (a *app) logger() zerolog.Logger {
	return a.log.Logger
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.cfg.Tracing.Enabled {
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}
	_ = observability.GetAuditLogger().Close()
	_ = a.log.Close()
}

func (a *app) ucpClient() *ucp.Client {
	m := a.cfg.Merchant
	return ucp.NewClient(
		ucp.WithTransport(m.Transport),
		ucp.WithUserAgent(m.UserAgent),
		ucp.WithTimeout(m.Timeout()),
		ucp.WithLogger(a.log.Component("ucp")),
	)
}

// acpClient returns nil when no session-checkout endpoint is configured
func (a *app) acpClient() *acp.Client {
	c := a.cfg.ACP
	if !c.Enabled() {
		return nil
	}
	return acp.NewClient(c.Endpoint, c.APIKey,
		acp.WithAPIVersion(c.APIVersion),
		acp.WithTimeout(time.Duration(c.TimeoutSeconds)*time.Second),
		acp.WithLogger(a.log.Component("acp")),
	)
}

func (a *app) llmConfig() llm.Config {
	c := a.cfg.LLM
	return llm.Config{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}
