// Package metrics exposes Prometheus counters for the reply pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concierge"

// Outcome labels for processed messages.
const (
	OutcomeAutoReply = "auto_reply"
	OutcomeApproval  = "approval"
	OutcomeEscalated = "escalated"
	OutcomeFallback  = "fallback"
)

// Metrics holds the collectors registered on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesProcessed *prometheus.CounterVec
	toolCalls         *prometheus.CounterVec
	providerCalls     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	providerTokens    *prometheus.CounterVec
	approvalsCreated  *prometheus.CounterVec
	approvalsResolved *prometheus.CounterVec
	rateLimited       prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Guest messages processed, by outcome",
		}, []string{"outcome"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the provider",
		}, []string{"tool", "status"}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Completion provider calls",
		}, []string{"provider", "status"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Completion provider call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		providerTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens consumed by completion calls",
		}, []string{"provider", "type"}),
		approvalsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_created_total",
			Help:      "Approval requests created, by type",
		}, []string{"type"}),
		approvalsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_resolved_total",
			Help:      "Approval requests resolved, by status",
		}, []string{"status"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "API requests rejected by the rate limiter",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.messagesProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status(success)).Inc()
}

// ProviderCall records one provider attempt.
func (m *Metrics) ProviderCall(provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, status(err == nil)).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) ProviderTokens(provider string, prompt, completion int) {
	if m == nil {
		return
	}
	m.providerTokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	m.providerTokens.WithLabelValues(provider, "completion").Add(float64(completion))
}

func (m *Metrics) ApprovalCreated(approvalType string) {
	if m == nil {
		return
	}
	m.approvalsCreated.WithLabelValues(approvalType).Inc()
}

func (m *Metrics) ApprovalResolved(status string) {
	if m == nil {
		return
	}
	m.approvalsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
