// ABOUTME: Prometheus metrics for HTTP traffic and auth outcomes
// ABOUTME: Exposes the promhttp handler and instrumentation middleware

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carp_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carp_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carp_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carp_auth_failures_total",
			Help: "Authentication and authorization failures by error code.",
		},
		[]string{"code"},
	)

	downloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carp_package_downloads_total",
		Help: "Total package downloads served.",
	})
)

// Init registers the metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authFailuresTotal, downloadsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthFailure counts one auth failure by its error code.
func RecordAuthFailure(code string) {
	authFailuresTotal.WithLabelValues(code).Inc()
}

// RecordDownload counts one served package download.
func RecordDownload() {
	downloadsTotal.Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight measurement.
// The route pattern keeps label cardinality bounded; raw paths with embedded
// agent names must not reach the labels.
func Instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, pattern, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
