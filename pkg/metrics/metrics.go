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
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// MessagesTotal tracks messages sent, by topology.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"topology"},
	)

	// MessagesRejectedTotal tracks sends rejected before persistence.
	MessagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_rejected_total",
			Help: "Total messages rejected before persistence",
		},
		[]string{"reason"},
	)

	// MessagesDeletedTotal tracks physically deleted messages.
	MessagesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_deleted_total",
			Help: "Total messages deleted",
		},
		[]string{"scope"},
	)

	// ReadSweepMessages tracks messages flipped to read by conversation sweeps.
	ReadSweepMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "read_sweep_messages_total",
			Help: "Total messages marked read by conversation sweeps",
		},
	)

	// SupportAgentResolutions tracks support agent resolution outcomes.
	SupportAgentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_resolutions_total",
			Help: "Support agent resolutions by rule",
		},
		[]string{"rule"},
	)

	// ConversationWindowSize tracks how many raw messages a compaction read.
	ConversationWindowSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_window_messages",
			Help:    "Raw messages read per conversation listing",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"view"},
	)

	// EventsPublishFailures tracks domain events that could not be published.
	EventsPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_failures_total",
			Help: "Domain events that failed to publish",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordWindow records the raw window read for a conversation listing.
func RecordWindow(view string, n int) {
	ConversationWindowSize.WithLabelValues(view).Observe(float64(n))
}
