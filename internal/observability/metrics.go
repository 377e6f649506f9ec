// Package observability exposes Prometheus metrics for the HTTP surface and
// the trust plane.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	trustScore      prometheus.Histogram
	shareOutcomes   *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	trustScore := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "folio_trust_score",
		Help:    "Advisory anomaly score per scored request.",
		Buckets: []float64{0, 15, 20, 35, 50, 65, 80, 100},
	})
	shareOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_share_code_attempts_total",
		Help: "Share-code validation attempts by outcome.",
	}, []string{"outcome"})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "folio_rate_limited_total",
		Help: "Requests denied by the application rate limiter.",
	})
	registry.MustRegister(requests, duration, trustScore, shareOutcomes, rateLimited)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		trustScore:      trustScore,
		shareOutcomes:   shareOutcomes,
		rateLimited:     rateLimited,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveTrustScore records one advisory anomaly score.
func (m *Metrics) ObserveTrustScore(score int) {
	if m == nil {
		return
	}
	m.trustScore.Observe(float64(score))
}

// CountShareOutcome records one share-code validation outcome.
func (m *Metrics) CountShareOutcome(outcome string) {
	if m == nil {
		return
	}
	m.shareOutcomes.WithLabelValues(outcome).Inc()
}

// CountRateLimited records one rate-limited denial.
func (m *Metrics) CountRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Middleware records request counts and durations.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
