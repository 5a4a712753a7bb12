package ux

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UXMetrics tracks the UX host's event bus and dashboard activity.
type UXMetrics struct {
	// ConnectionsActive is the current number of attached dashboard connections.
	ConnectionsActive prometheus.Gauge

	// EventsTotal is the total number of events published (by type and source).
	EventsTotal *prometheus.CounterVec

	// EventLatencySeconds is the latency from event creation to delivery.
	EventLatencySeconds prometheus.Histogram

	// ErrorsTotal is the total number of broadcast errors (by error type).
	ErrorsTotal *prometheus.CounterVec

	// ReconnectTotal is the total number of dashboard reconnections.
	ReconnectTotal prometheus.Counter

	// BroadcastDuration is the duration of broadcast operations.
	BroadcastDuration prometheus.Histogram
}

// NewUXMetrics creates a new UXMetrics instance.
func NewUXMetrics(namespace string) *UXMetrics {
	return &UXMetrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "connections_active",
			Help:      "Current number of attached dashboard connections",
		}),

		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "events_total",
			Help:      "Total number of UX events published, by type and source",
		}, []string{"type", "source"}),

		EventLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "event_latency_seconds",
			Help:      "Latency from event creation to delivery, in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "errors_total",
			Help:      "Total number of UX broadcast errors, by error type",
		}, []string{"error_type"}),

		ReconnectTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "reconnect_total",
			Help:      "Total number of dashboard reconnections",
		}),

		BroadcastDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ux",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of broadcast operations, in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
}
