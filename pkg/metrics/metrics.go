// Package metrics provides the Prometheus registry and scrape handler for the
// caching proxy. Metrics are defined in their respective packages (cache,
// proxy) via promauto to avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - proxy_cache_hits_total (Counter): Fresh entries served from the cache
//   - proxy_cache_misses_total{reason} (Counter): Lookups that went to the origin
//   - proxy_cache_stores_total (Counter): Responses written to the cache
//   - proxy_cache_store_rejections_total{reason} (Counter): Responses not stored
//   - proxy_cache_conditional_responses_total{status} (Counter): 304 and 412 placeholders
//   - proxy_cache_errors_total{operation} (Counter): Backend and decode errors
//   - proxy_cache_stored_bytes_total (Counter): Serialized bytes written to the backend
//
// Proxy Metrics (pkg/proxy):
//   - proxy_requests_total{method, cache} (Counter): Requests by method and outcome (hit, miss, bypass)
//   - proxy_request_duration_seconds{cache} (Histogram): Request duration by outcome
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(proxy_cache_hits_total[5m])) /
//   (sum(rate(proxy_cache_hits_total[5m])) + sum(rate(proxy_cache_misses_total[5m])))
//
//   # Stale Entry Rate
//   rate(proxy_cache_misses_total{reason="stale"}[5m])
//
//   # Backend Error Rate
//   sum by (operation) (rate(proxy_cache_errors_total[5m]))
//
//   # P95 Miss Latency
//   histogram_quantile(0.95, rate(proxy_request_duration_seconds_bucket{cache="miss"}[5m]))
