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
			Name:    "chat_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages persisted, by submission path.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total messages persisted",
		},
		[]string{"via", "gig_tagged"},
	)

	// RelayPublishedTotal tracks relay events published to NATS.
	RelayPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_published_total",
			Help: "Total relay events published",
		},
	)

	// RelayFailedTotal tracks relay publish failures. Delivery is
	// fire-and-forget, so these are logged and counted, never surfaced.
	RelayFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_failed_total",
			Help: "Total relay publish failures",
		},
	)

	// WSSessionsActive tracks open websocket sessions.
	WSSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_sessions_active",
			Help: "Number of active websocket sessions",
		},
	)

	// StoreOpDuration tracks message store operation latency.
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_op_duration_seconds",
			Help:    "Message store operation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	// ConversationsBuilt tracks inbox aggregations served.
	ConversationsBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_built_total",
			Help: "Total conversation list aggregations",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessage records a persisted message.
func RecordMessage(via string, gigTagged bool) {
	tag := "no"
	if gigTagged {
		tag = "yes"
	}
	MessagesTotal.WithLabelValues(via, tag).Inc()
}

// IncrementWSSessions increments the active websocket session count.
func IncrementWSSessions() {
	WSSessionsActive.Inc()
}

// DecrementWSSessions decrements the active websocket session count.
func DecrementWSSessions() {
	WSSessionsActive.Dec()
}
