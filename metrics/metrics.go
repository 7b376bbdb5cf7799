// Package metrics provides Prometheus instrumentation for the playlist
// sanitizer. Metrics register on the default registerer at init; Handler
// exposes them at GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sanitize results
const (
	ResultSuccess        = "success"
	ResultPassthrough    = "passthrough"
	ResultFetchError     = "fetch_error"
	ResultRecursionLimit = "recursion_limit"
	ResultSuperseded     = "superseded"
	ResultInvalid        = "invalid"
	ResultPublishError   = "publish_error"
)

// SanitizeTotal counts sanitize calls by result.
var SanitizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hls_sanitizer_sanitize_total",
	Help: "Playlist sanitize calls by result.",
}, []string{"result"})

// AdSpansRemoved counts ad spans removed by signature.
var AdSpansRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hls_sanitizer_ad_spans_removed_total",
	Help: "Ad spans removed from playlists, by signature.",
}, []string{"signature"})

// MalformedURILines counts playlist lines left unresolved.
var MalformedURILines = promauto.NewCounter(prometheus.CounterOpts{
	Name: "hls_sanitizer_malformed_uri_lines_total",
	Help: "URI lines that could not be resolved against the playlist URL.",
})

// FetchDuration tracks playlist fetch latency by outcome.
var FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "hls_sanitizer_fetch_duration_seconds",
	Help:    "Playlist fetch latency in seconds.",
	Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
}, []string{"outcome"})

// PublishedResources is the number of playlists currently held by publishers.
var PublishedResources = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "hls_sanitizer_published_resources",
	Help: "Sanitized playlists currently published.",
})

// HTTPRequests counts HTTP requests by method, route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hls_sanitizer_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "hls_sanitizer_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// ObserveFetch records the latency of one playlist fetch
func ObserveFetch(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an HTTP handler to record request counts and latency.
// route should be a templated path, not the raw URL.
func Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		name := route(r)
		HTTPRequests.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
