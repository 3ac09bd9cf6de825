package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks responses served from the cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total number of responses served from the proxy cache",
		},
	)

	// CacheMisses tracks fetches that fell through to the origin
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Total number of proxy cache misses",
		},
		[]string{"reason"}, // "not_fetchable", "absent", "stale"
	)

	// CacheStores tracks responses persisted to the backend
	CacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_stores_total",
			Help: "Total number of responses stored in the proxy cache",
		},
	)

	// StoreRejections tracks responses that were not eligible for storage
	StoreRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_store_rejections_total",
			Help: "Total number of responses rejected for storage",
		},
		[]string{"reason"}, // "unsafe_method", "head_request", "authorization", "status", "not_cacheable", "vary_wildcard"
	)

	// ConditionalResponses tracks 304 and 412 placeholder responses
	ConditionalResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_conditional_responses_total",
			Help: "Total number of conditional placeholder responses",
		},
		[]string{"status"}, // "304", "412"
	)

	// CacheErrors tracks backend and serialization errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_errors_total",
			Help: "Total number of proxy cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "has", "remove", "find_by_tag", "decode"
	)

	// StoredBytes counts the serialized bytes of entries written to the backend
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_cache_stored_bytes_total",
			Help: "Total bytes of serialized entries written to the backend",
		},
	)
)
