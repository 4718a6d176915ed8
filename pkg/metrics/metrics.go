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

	// GenerationDuration tracks end-to-end generation stream duration.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Generation stream duration from start to terminal event",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"kind", "status"},
	)

	// DeltaEventsTotal tracks delta events emitted by executors.
	DeltaEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_events_total",
			Help: "Total delta events emitted",
		},
		[]string{"kind"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// VersionsWrittenTotal tracks artifact versions persisted.
	VersionsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_versions_written_total",
			Help: "Total artifact versions written",
		},
		[]string{"kind"},
	)

	// VersionWriteRetriesTotal tracks version-number conflict retries.
	VersionWriteRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifact_version_write_retries_total",
			Help: "Version write retries due to numbering conflicts",
		},
	)

	// BrokerSubscribersActive tracks live broker subscriptions.
	BrokerSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_subscribers_active",
			Help: "Active resumable stream subscriptions",
		},
	)

	// BrokerBufferEvictionsTotal tracks replay buffer overflow evictions.
	BrokerBufferEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_buffer_evictions_total",
			Help: "Delta events evicted from replay buffers due to the size cap",
		},
	)

	// DedupDroppedTotal tracks messages dropped by the dedup gate.
	DedupDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_dropped_total",
			Help: "Outbound messages dropped by the dedup gate",
		},
		[]string{"reason"},
	)

	// CacheHitsTotal tracks client version cache hits and misses.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "version_cache_requests_total",
			Help: "Version cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records metrics for a finished generation stream.
func RecordGeneration(kind, status string, duration float64) {
	GenerationDuration.WithLabelValues(kind, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
