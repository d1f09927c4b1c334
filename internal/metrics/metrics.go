// Package metrics exposes Prometheus collectors for the greeting bot.
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
	providerFetchTotal         *prometheus.CounterVec
	resolveTotal               *prometheus.CounterVec
	deliveriesTotal            *prometheus.CounterVec
	jobRunsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec
	sendRateLimitDelaySeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		providerFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeting_provider_fetch_total",
				Help: "Total number of provider page scrapes, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		resolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeting_resolve_total",
				Help: "Total number of image resolutions, labeled by requested category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeting_deliveries_total",
				Help: "Total number of per-recipient deliveries, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
		)

		jobRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeting_job_runs_total",
				Help: "Total number of scheduled dispatch cycles, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
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

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeting_robots_fallback_total",
				Help: "Total robots.txt probes that fell back to allow-all after TLS timeouts.",
			},
			[]string{"site"},
		)

		sendRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "greeting_send_rate_limit_delay_seconds",
				Help:    "Histogram of time deliveries spent waiting on the send rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
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
	Init()
	return promhttp.Handler()
}

// ObserveProviderFetch counts one provider scrape.
func ObserveProviderFetch(provider, outcome string) {
	Init()
	providerFetchTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveResolve counts one resolver call.
func ObserveResolve(category, outcome string) {
	Init()
	resolveTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveDelivery counts one delivery attempt to a single recipient.
func ObserveDelivery(job, outcome string) {
	Init()
	deliveriesTotal.WithLabelValues(job, outcome).Inc()
}

// ObserveJobRun counts one dispatch cycle.
func ObserveJobRun(job, outcome string) {
	Init()
	jobRunsTotal.WithLabelValues(job, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt allow-all fallback for site.
func ObserveRobotsFallback(site string) {
	Init()
	robotsFallbackTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveSendRateLimitDelay records how long a delivery waited for a send token.
func ObserveSendRateLimitDelay(duration time.Duration) {
	Init()
	sendRateLimitDelaySeconds.Observe(duration.Seconds())
}
