// Package metrics exposes Prometheus collectors for the crawler service.
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
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerRecordsTotal           *prometheus.CounterVec
	crawlerRunsTotal              *prometheus.CounterVec
	crawlerPromotionsTotal        *prometheus.CounterVec
	crawlerActiveEnrichments      prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site, page kind and status.",
			},
			[]string{"site", "kind", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		crawlerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_total",
				Help: "Total number of records persisted, labeled by site, kind and status.",
			},
			[]string{"site", "kind", "status"},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_headless_promotions_total",
				Help: "Static fetches re-run in headless Chrome because the page looked unrendered.",
			},
			[]string{"host"},
		)

		crawlerActiveEnrichments = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_enrichments",
				Help: "Number of profile pages currently being enriched.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObservePage counts one listing or detail fetch.
func ObservePage(site, kind, status string) {
	if crawlerPagesTotal == nil {
		return
	}
	crawlerPagesTotal.WithLabelValues(site, kind, status).Inc()
}

// ObserveBytes adds fetched body bytes for the URL's host.
func ObserveBytes(rawURL string, n int) {
	if crawlerBytesTotal == nil || n <= 0 {
		return
	}
	crawlerBytesTotal.WithLabelValues(SanitizeHost(rawURL)).Add(float64(n))
}

// ObserveRecord counts one persisted (or failed) record.
func ObserveRecord(site, kind, status string) {
	if crawlerRecordsTotal == nil {
		return
	}
	crawlerRecordsTotal.WithLabelValues(site, kind, status).Inc()
}

// ObserveRun counts a finished crawl run.
func ObserveRun(status string) {
	if crawlerRunsTotal == nil {
		return
	}
	crawlerRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveEnrichments increments the active enrichment gauge.
func IncActiveEnrichments() {
	if crawlerActiveEnrichments != nil {
		crawlerActiveEnrichments.Inc()
	}
}

// DecActiveEnrichments decrements the active enrichment gauge.
func DecActiveEnrichments() {
	if crawlerActiveEnrichments != nil {
		crawlerActiveEnrichments.Dec()
	}
}

// ObservePromotion counts one static-to-headless promotion for host.
func ObservePromotion(host string) {
	if crawlerPromotionsTotal == nil {
		return
	}
	crawlerPromotionsTotal.WithLabelValues(host).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if crawlerRateLimitDelaysSeconds == nil {
		return
	}
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
