package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DashboardMetrics instruments the C9 UX dashboard server: the health
// endpoint and the websocket upgrade that streams bundle-run events to an
// attached dashboard. It is the transport-facing counterpart to the
// plan/cache/apply/pipe counters above.
type DashboardMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestSize     *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
}

// NewDashboardMetrics creates a DashboardMetrics instance under the
// chainboot/ux namespace.
func NewDashboardMetrics() *DashboardMetrics {
	return NewDashboardMetricsWithNamespace(namespace, "ux")
}

// NewDashboardMetricsWithNamespace creates a DashboardMetrics instance with
// a custom namespace and subsystem, for tests that need an isolated
// registry label space.
func NewDashboardMetricsWithNamespace(ns, subsystem string) *DashboardMetrics {
	return &DashboardMetrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of dashboard HTTP requests processed",
			},
			[]string{"method", "path", "status_code"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of dashboard HTTP requests in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "path", "status_code"},
		),
		requestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: subsystem,
				Name:      "request_size_bytes",
				Help:      "Size of dashboard HTTP requests in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		responseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: subsystem,
				Name:      "response_size_bytes",
				Help:      "Size of dashboard HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status_code"},
		),
		activeRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: subsystem,
				Name:      "active_requests",
				Help:      "Number of currently active dashboard HTTP requests (including the open websocket)",
			},
		),
	}
}

// dashboardResponseWriter wraps http.ResponseWriter to capture response
// size and status code for the dashboard's own request metrics.
type dashboardResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (rw *dashboardResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *dashboardResponseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.responseSize += int64(size)
	return size, err
}

// Middleware returns the HTTP middleware the dashboard server installs on
// its router to collect request metrics.
func (m *DashboardMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The /metrics scrape endpoint doesn't instrument itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.activeRequests.Inc()

		rw := &dashboardResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		requestSize := r.ContentLength
		if requestSize > 0 {
			m.requestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(requestSize))
		}

		defer func() {
			duration := time.Since(start)
			statusCode := strconv.Itoa(rw.statusCode)

			m.requestsTotal.WithLabelValues(r.Method, r.URL.Path, statusCode).Inc()
			m.requestDuration.WithLabelValues(r.Method, r.URL.Path, statusCode).Observe(duration.Seconds())

			if rw.responseSize > 0 {
				m.responseSize.WithLabelValues(r.Method, r.URL.Path, statusCode).Observe(float64(rw.responseSize))
			}

			m.activeRequests.Dec()
		}()

		next.ServeHTTP(rw, r)
	})
}

// Handler returns the Prometheus scrape handler serving this and every
// other metric registered against the default registry (plan, cache,
// apply, and pipe counters included).
func (m *DashboardMetrics) Handler() http.Handler {
	return promhttp.Handler()
}
