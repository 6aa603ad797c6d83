// Package metrics exposes prometheus instrumentation for the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orelake_api_build_info",
			Help: "Build information of the OreLake API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orelake_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orelake_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orelake_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orelake_api_queries_total",
			Help: "Natural-language queries processed, by outcome",
		},
		[]string{"outcome"},
	)

	GenerationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orelake_api_generation_attempts",
			Help:    "SQL generation attempts consumed per successful query",
			Buckets: []float64{1, 2, 3, 4},
		},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orelake_api_analyses_total",
			Help: "Spatial analyses executed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// RecordQuery tracks one end-to-end natural-language query.
func RecordQuery(success bool, attempts int) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	QueriesTotal.WithLabelValues(outcome).Inc()
	if success && attempts > 0 {
		GenerationAttempts.Observe(float64(attempts))
	}
}

// RecordAnalysis tracks one spatial analysis run.
func RecordAnalysis(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AnalysesTotal.WithLabelValues(kind, outcome).Inc()
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
