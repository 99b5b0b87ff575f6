// Package metrics provides the Prometheus registry and scrape handler for
// the Notion site client. All metrics are defined in their respective
// packages (notion, cache, ratelimit, previewimages, site) to maintain
// modularity and avoid circular dependencies.
//
// This package also documents every available metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry scraped by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the scrape handler for all registered metrics.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Backoff Metrics (pkg/ratelimit):
//   - notion_rate_limited_total (Counter): 429 responses recorded from Notion
//   - notion_rate_limit_blocks_total (Counter): Requests blocked while backing off
//   - notion_rate_limit_throttles_total (Counter): Requests delayed until the backoff deadline
//
// Cache Metrics (pkg/cache):
//   - notion_cache_hits_total{endpoint} (Counter): Hits by Notion method or "preview"
//   - notion_cache_misses_total{endpoint} (Counter): Misses by Notion method or "preview"
//   - notion_cache_bytes_total{direction} (Counter): Entry bytes read and written
//   - notion_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/notion):
//   - notion_requests_total{endpoint, status} (Counter): Requests by API method and outcome
//     (HTTP status, "cached", "rate_limited", "network_error")
//   - notion_request_duration_seconds{endpoint} (Histogram): Request duration by API method
//   - notion_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/notion):
//   - notion_retries_total{error_class} (Counter): Retry attempts by error class
//   - notion_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - notion_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Preview Image Metrics (pkg/previewimages):
//   - preview_images_total{result} (Counter): Lookups by result (cached, computed, failed)
//   - preview_image_duration_seconds (Histogram): Fetch and downscale time per image
//
// Site Metrics (pkg/site):
//   - site_page_loads_total{result} (Counter): Page loads by result (ok, error)
//   - site_signed_urls_total (Counter): File URLs signed for page loads
//   - site_navigation_fetches_total{result} (Counter): Navigation page batch fetches
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(notion_cache_hits_total[5m])) /
//   (sum(rate(notion_cache_hits_total[5m])) + sum(rate(notion_cache_misses_total[5m])))
//
//   # Backoff pressure
//   rate(notion_rate_limited_total[5m]) > 0
//
//   # Request Error Rate
//   rate(notion_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(notion_request_duration_seconds_bucket[5m]))
//
//   # Failed page loads
//   rate(site_page_loads_total{result="error"}[5m])
