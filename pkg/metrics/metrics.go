// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SpacesCreated tracks spaces created, by notebook.
	SpacesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaces_created_total",
			Help: "Total spaces created",
		},
		[]string{"notebook_id"},
	)

	// SpacesDenied tracks creations rejected by the quota policy.
	SpacesDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaces_quota_denied_total",
			Help: "Space creations denied by quota",
		},
		[]string{"notebook_id", "tier"},
	)

	// MessagesTotal tracks messages persisted, by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	// NamingGenerations tracks auto-naming runs and their outcome.
	NamingGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naming_generations_total",
			Help: "Auto-naming generation attempts",
		},
		[]string{"outcome"},
	)

	// CompactionsTotal tracks compaction workflow runs.
	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compactions_total",
			Help: "Compaction workflow runs",
		},
		[]string{"outcome"},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SnapshotWriteFailures tracks best-effort persistence failures.
	SnapshotWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_write_failures_total",
			Help: "Failed store snapshot writes",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
