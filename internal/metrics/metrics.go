// Package metrics exposes Prometheus counters and gauges for the engine's
// planning, caching, applying, and pipe-transport stages, alongside the
// dashboard HTTP/websocket transport (dashboard.go) and the retry/backoff
// instrumentation internal/resilience records (retry.go). Everything here
// registers against the default registry, so DashboardMetrics' /metrics
// handler serves all of it without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainboot"

var (
	// PackagesPlanned counts packages the planner placed onto the
	// execute action list, by requested action and package kind.
	PackagesPlanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "packages_planned_total",
			Help:      "Packages placed onto an execute action list by the planner",
		},
		[]string{"action", "kind"},
	)

	// CacheOutcomes counts payload and container acquisitions by
	// outcome: hit (already verified in the cache), acquired (freshly
	// downloaded or copied), or failed (exhausted verify retries).
	CacheOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "outcomes_total",
			Help:      "Payload and container acquisitions by outcome",
		},
		[]string{"outcome"},
	)

	// BytesAcquired totals payload and container bytes pulled in by
	// the acquirer, by source kind (download, local copy).
	BytesAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes_acquired_total",
			Help:      "Bytes transferred into the unverified cache",
		},
		[]string{"source"},
	)

	// PackagesExecuted counts completed package actions, by package
	// kind, action, and result (success, failed, rolled_back).
	PackagesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "packages_executed_total",
			Help:      "Package actions the applier dispatched to completion",
		},
		[]string{"kind", "action", "result"},
	)

	// RollbacksTotal counts rollback boundaries entered, by whether
	// the boundary was vital.
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "rollbacks_total",
			Help:      "Rollback boundaries entered after a package failure",
		},
		[]string{"vital"},
	)

	// ApplyInFlight reports whether an Applier run is currently active
	// (0 or 1); useful as a liveness signal alongside the counters.
	ApplyInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "run_in_flight",
			Help:      "1 while an applier run is in progress, 0 otherwise",
		},
	)

	// PipeMessages counts messages sent and received over the control
	// pipe, by direction and message type.
	PipeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "messages_total",
			Help:      "Control pipe messages by direction and message type",
		},
		[]string{"direction", "message_type"},
	)
)
