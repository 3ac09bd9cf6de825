// Package cache provides the HTTP response cache of the caching proxy.
//
// The package implements RFC 2616 style cache semantics on top of a pluggable
// tagged key/value Backend:
//
// - Deterministic entry identifiers from the request URI and Vary-selected headers
// - Serialized entry format (status line, headers, blank line, body)
// - Tag-based lookup and bulk invalidation
// - Fetch and store eligibility (safe methods, Authorization, status, no-store/no-cache)
// - Freshness checks with min-fresh/max-stale and the stale Warning
// - Conditional requests (If-Match, If-None-Match) answered with 412/304 placeholders
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(backend.NewMemory())
//	policy := cache.NewPolicy(store, cache.DefaultConfig())
//
//	// Before dispatching the request
//	resp, err := policy.FetchResponse(ctx, req)
//	if err == nil && resp != nil {
//		resp.Send(w) // X-Proxy-Cache: hit
//		return
//	}
//
//	// After the origin produced a response
//	if err := policy.StoreResponse(ctx, req, originResp, "products"); err != nil {
//		logger.Warn().Err(err).Msg("Failed to store response")
//	}
//
// # Entry Identifiers
//
// The identifier is the md5 hex digest of "Name=value;" for every header in
// the active Vary list, followed by the canonical URI. The active Vary list
// is the request's own Vary header when present, otherwise the Vary header
// of the response stored for the URI.
//
// # Tag Invalidation
//
//	removed, err := policy.Store().InvalidateTag(ctx, "products")
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - proxy_cache_hits_total - Responses served from the cache
//   - proxy_cache_misses_total{reason} - Cache misses
//   - proxy_cache_stores_total - Responses stored
//   - proxy_cache_store_rejections_total{reason} - Responses not eligible for storage
//   - proxy_cache_conditional_responses_total{status} - 304/412 placeholders
//   - proxy_cache_errors_total{operation} - Backend and decode errors
//   - proxy_cache_stored_bytes_total - Serialized bytes written to the backend
package cache
