// Package metrics exposes Prometheus collectors for the alert poller.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal                *prometheus.CounterVec
	cycleDurationSeconds       prometheus.Histogram
	catalogFetchesTotal        *prometheus.CounterVec
	matchesTotal               *prometheus.CounterVec
	newLinksTotal              *prometheus.CounterVec
	dispatchesTotal            *prometheus.CounterVec
	disabledTermsTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_cycles_total",
				Help: "Total number of poll cycles, labeled by final status.",
			},
			[]string{"status"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alerts_cycle_duration_seconds",
				Help:    "Histogram of poll cycle durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		catalogFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_catalog_fetches_total",
				Help: "Total number of catalog fetches, labeled by board and status.",
			},
			[]string{"board", "status"},
		)

		matchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_matches_total",
				Help: "Total number of match results produced, labeled by alert label.",
			},
			[]string{"label"},
		)

		newLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_new_links_total",
				Help: "Total number of links seen for the first time, labeled by alert label.",
			},
			[]string{"label"},
		)

		dispatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_dispatches_total",
				Help: "Total number of webhook dispatches, labeled by outcome.",
			},
			[]string{"status"},
		)

		disabledTermsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alerts_disabled_terms_total",
				Help: "Total number of search terms disabled because they failed to compile.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alerts_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations before catalog requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records a finished cycle.
func ObserveCycle(status string, duration time.Duration) {
	Init()
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveCatalogFetch records one catalog fetch attempt.
func ObserveCatalogFetch(board, status string) {
	Init()
	catalogFetchesTotal.WithLabelValues(board, status).Inc()
}

// ObserveLabel records the match and new-link counts for a label in one cycle.
func ObserveLabel(label string, matches, fresh int) {
	Init()
	if matches > 0 {
		matchesTotal.WithLabelValues(label).Add(float64(matches))
	}
	if fresh > 0 {
		newLinksTotal.WithLabelValues(label).Add(float64(fresh))
	}
}

// ObserveDispatch records a webhook dispatch outcome.
func ObserveDispatch(status string) {
	Init()
	dispatchesTotal.WithLabelValues(status).Inc()
}

// ObserveDisabledTerms counts terms that were switched off in a cycle.
func ObserveDisabledTerms(n int) {
	Init()
	if n > 0 {
		disabledTermsTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
