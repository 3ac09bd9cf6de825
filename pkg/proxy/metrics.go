package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts proxied requests by method and cache outcome
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total requests handled by the caching proxy",
		},
		[]string{"method", "cache"},
	)

	// RequestDuration tracks end-to-end request duration by cache outcome
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "Request duration by cache outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache"},
	)
)
