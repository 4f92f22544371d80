// Package metrics exposes Prometheus collectors for the ratings crawler.
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
	fetchAttemptsTotal            *prometheus.CounterVec
	fetchRetriesTotal             prometheus.Counter
	fetchExhaustedTotal           prometheus.Counter
	fetchInflight                 prometheus.Gauge
	robotsFallbacksTotal          prometheus.Counter
	pagesTotal                    *prometheus.CounterVec
	entitiesTotal                 *prometheus.CounterVec
	userIDsAssignedTotal          prometheus.Counter
	itemCollisionsTotal           prometheus.Counter
	ratingsMergedTotal            prometheus.Counter
	batchDurationSeconds          prometheus.Histogram
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_fetch_retries_total",
				Help: "Total number of backoff waits before a retry.",
			},
		)

		fetchExhaustedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_fetch_exhausted_total",
				Help: "Total number of URLs abandoned after the retry budget ran out.",
			},
		)

		fetchInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratings_fetch_inflight",
				Help: "Number of requests currently holding an in-flight slot.",
			},
		)

		robotsFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_robots_fallbacks_total",
				Help: "Total number of robots.txt probes answered with allow-all after timing out.",
			},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_pages_total",
				Help: "Total number of listing pages processed, labeled by result kind.",
			},
			[]string{"kind"},
		)

		entitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_entities_total",
				Help: "Total number of entity tasks finished, labeled by final state.",
			},
			[]string{"state"},
		)

		userIDsAssignedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_user_ids_assigned_total",
				Help: "Total number of new surrogate user IDs allocated.",
			},
		)

		itemCollisionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_item_collisions_total",
				Help: "Total number of item ID collisions detected.",
			},
		)

		ratingsMergedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_merged_total",
				Help: "Total number of ratings merged into a batch result.",
			},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratings_batch_duration_seconds",
				Help:    "Histogram of batch wall-clock durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratings_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratings_http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
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

// ObserveFetchAttempt counts one transport attempt.
func ObserveFetchAttempt(site, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveFetchRetry counts one backoff wait.
func ObserveFetchRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveFetchExhausted counts one URL that ran out of retries.
func ObserveFetchExhausted() {
	Init()
	fetchExhaustedTotal.Inc()
}

// IncInflight increments the in-flight request gauge.
func IncInflight() {
	Init()
	fetchInflight.Inc()
}

// DecInflight decrements the in-flight request gauge.
func DecInflight() {
	Init()
	fetchInflight.Dec()
}

// ObserveRobotsFallback counts one robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbacksTotal.Inc()
}

// ObservePage counts one processed listing page.
func ObservePage(kind string) {
	Init()
	pagesTotal.WithLabelValues(kind).Inc()
}

// ObserveEntity counts one finished entity task.
func ObserveEntity(state string) {
	Init()
	entitiesTotal.WithLabelValues(state).Inc()
}

// ObserveUserIDAssigned counts one newly allocated user ID.
func ObserveUserIDAssigned() {
	Init()
	userIDsAssignedTotal.Inc()
}

// ObserveItemCollision counts one item collision.
func ObserveItemCollision() {
	Init()
	itemCollisionsTotal.Inc()
}

// ObserveRatingsMerged adds n merged ratings.
func ObserveRatingsMerged(n int) {
	Init()
	if n > 0 {
		ratingsMergedTotal.Add(float64(n))
	}
}

// ObserveBatchDuration records how long one batch took.
func ObserveBatchDuration(d time.Duration) {
	Init()
	batchDurationSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
