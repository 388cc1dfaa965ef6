package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentIterations  prometheus.Histogram

	llmCallTotal    *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensTotal  *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	transportFallbacks  *prometheus.CounterVec

	ordersTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_agent_run_total",
					Help: "Total agent runs by mode and outcome.",
				},
				[]string{"mode", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			agentIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "shopagent_agent_iterations",
					Help:    "Loop iterations used per agent run.",
					Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 30},
				},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_llm_call_total",
					Help: "Total LLM adapter calls by mode and status.",
				},
				[]string{"mode", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_llm_call_duration_seconds",
					Help:    "LLM adapter call duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			llmTokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_llm_tokens_total",
					Help: "Total tokens reported by the LLM adapter by kind.",
				},
				[]string{"kind"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			httpRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_http_request_total",
					Help: "Outbound merchant requests by client, transport and status class.",
				},
				[]string{"client", "transport", "status"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "shopagent_http_request_duration_seconds",
					Help:    "Outbound merchant request duration in seconds by client and transport.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"client", "transport"},
			),
			transportFallbacks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_transport_fallback_total",
					Help: "Auto-transport fallbacks from one transport to another.",
				},
				[]string{"from", "to"},
			),
			ordersTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "shopagent_orders_total",
					Help: "Checkout completions by protocol and outcome.",
				},
				[]string{"protocol", "status"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentIterations,
			m.llmCallTotal,
			m.llmCallDuration,
			m.llmTokensTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.httpRequestTotal,
			m.httpRequestDuration,
			m.transportFallbacks,
			m.ordersTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordAgentRun(mode string, duration time.Duration, iterations int, success bool) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(mode, statusLabel(success)).Inc()
	m.agentRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.agentIterations.Observe(float64(iterations))
}

func RecordLLMCall(mode string, duration time.Duration, promptTokens, completionTokens int, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(mode, statusLabel(success)).Inc()
	m.llmCallDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

// RecordHTTPRequest records one outbound call. status is the HTTP status code,
// or 0 when no response was received.
func RecordHTTPRequest(client, transport string, status int, duration time.Duration) {
	m := getMetrics()
	class := "network_error"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	case status >= 200:
		class = "2xx"
	}
	m.httpRequestTotal.WithLabelValues(client, transport, class).Inc()
	m.httpRequestDuration.WithLabelValues(client, transport).Observe(duration.Seconds())
}

func RecordTransportFallback(from, to string) {
	m := getMetrics()
	m.transportFallbacks.WithLabelValues(from, to).Inc()
}

func RecordOrder(protocol string, success bool) {
	m := getMetrics()
	m.ordersTotal.WithLabelValues(protocol, statusLabel(success)).Inc()
}
