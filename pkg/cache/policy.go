package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeaderProxyCache marks whether a response was served from the cache ("hit")
// or produced by the origin ("miss").
const HeaderProxyCache = "X-Proxy-Cache"

// hop-by-hop headers, never persisted
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Filter transforms a response before it is stored.
// Filters only run when the request permits transformation.
type Filter interface {
	Filter(resp *Response) error
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(resp *Response) error

// Filter calls f(resp).
func (f FilterFunc) Filter(resp *Response) error {
	return f(resp)
}

// Config holds policy configuration.
type Config struct {
	// DefaultTTL is the backend lifetime of entries without max-age (0 = no expiry).
	DefaultTTL time.Duration

	// Filters run in order on storable responses unless the request sets no-transform.
	Filters []Filter

	// Logger receives cache decisions (default: global logger, component=proxy-cache).
	Logger *zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns a default policy configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 0,
		Now:        time.Now,
	}
}

// Policy decides whether requests may be answered from the cache and whether
// responses may be stored. It keeps no per-request state and is safe for
// concurrent use when its Backend is.
type Policy struct {
	store   *Store
	filters []Filter
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewPolicy creates a new policy engine on top of store.
func NewPolicy(store *Store, cfg Config) *Policy {
	if store == nil {
		panic("cache store cannot be nil")
	}

	logger := log.With().Str("component", "proxy-cache").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Policy{
		store:   store,
		filters: cfg.Filters,
		ttl:     cfg.DefaultTTL,
		logger:  logger,
		now:     now,
	}
}

// Store returns the underlying entry store.
func (p *Policy) Store() *Store {
	return p.store
}

// FetchResponse returns the cached response for r, or nil on a miss.
//
// The returned response may be a stored entry or an empty 304/412 placeholder
// produced by conditional request handling; either way it carries
// X-Proxy-Cache: hit and its ETag is the entry identifier. Errors are backend
// failures or invalid identifiers; callers should treat them as a miss.
//
// FetchResponse may remove If-Modified-Since from r.
func (p *Policy) FetchResponse(ctx context.Context, r *http.Request) (*Response, error) {
	if !p.CanFetch(r) {
		CacheMisses.WithLabelValues("not_fetchable").Inc()
		return nil, nil
	}

	id, err := p.resolveIdentifier(ctx, r)
	if err != nil {
		return nil, err
	}

	present, err := p.has(ctx, r, id)
	if err != nil {
		return nil, err
	}
	if !present {
		CacheMisses.WithLabelValues("absent").Inc()
		p.logger.Debug().Str("identifier", id).Msg("Cache miss")
		return nil, nil
	}

	resp, err := p.get(ctx, r, id)
	if errors.Is(err, ErrCacheMiss) {
		CacheMisses.WithLabelValues("absent").Inc()
		p.logger.Debug().Str("identifier", id).Msg("Cache entry vanished")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !p.IsFresh(resp) {
		CacheMisses.WithLabelValues("stale").Inc()
		p.logger.Debug().Str("identifier", id).Msg("Cached response is stale")
		return nil, nil
	}

	resp.Header.Set(HeaderProxyCache, "hit")
	CacheHits.Inc()
	p.logger.Debug().
		Str("identifier", id).
		Int("status_code", resp.StatusCode).
		Msg("Fetched response from cache")

	return resp, nil
}

// StoreResponse persists resp for r when it is eligible.
//
// resp is marked X-Proxy-Cache: miss and, when stored, stripped of hop-by-hop
// headers, given a Date if it has none and passed through the configured
// filters. Responses already marked as a hit are never stored again.
// Ineligible responses are not an error.
func (p *Policy) StoreResponse(ctx context.Context, r *http.Request, resp *Response, tags ...string) error {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Header.Get(HeaderProxyCache) == "hit" {
		return nil
	}
	resp.Header.Set(HeaderProxyCache, "miss")

	if ok, reason := p.CanStore(r, resp); !ok {
		StoreRejections.WithLabelValues(reason).Inc()
		p.logger.Debug().
			Str("uri", CanonicalURI(r)).
			Str("reason", reason).
			Msg("Cannot store response")
		return nil
	}

	vary := RequestVary(r)
	if len(vary) == 0 {
		vary = ListHeader(resp.Header, "Vary")
	}
	for _, name := range vary {
		if name == "*" {
			StoreRejections.WithLabelValues("vary_wildcard").Inc()
			p.logger.Debug().
				Str("uri", CanonicalURI(r)).
				Str("reason", "vary_wildcard").
				Msg("Cannot store response")
			return nil
		}
	}

	if resp.Header.Get("Date") == "" {
		resp.Header.Set("Date", p.now().UTC().Format(http.TimeFormat))
	}

	for _, name := range hopByHopHeaders {
		resp.Header.Del(name)
	}

	if !ParseCacheControl(r.Header.Values("Cache-Control")).Has("no-transform") {
		for _, f := range p.filters {
			if err := f.Filter(resp); err != nil {
				return fmt.Errorf("filter response: %w", err)
			}
		}
	}

	id := EntryIdentifier(r, vary)
	ttl := p.ttl
	if maxAge, ok := resp.MaxAge(); ok {
		ttl = maxAge
	}

	if err := p.store.SetVary(ctx, r, vary, ttl); err != nil {
		return fmt.Errorf("record vary for %q: %w", id, err)
	}
	if err := p.store.Set(ctx, id, resp, tags, ttl); err != nil {
		return err
	}

	CacheStores.Inc()
	p.logger.Debug().
		Str("identifier", id).
		Dur("ttl", ttl).
		Strs("tags", tags).
		Msg("Stored response")

	return nil
}

// CanFetch reports whether r may be answered from the cache: its method must
// be safe and it must not carry Authorization.
func (p *Policy) CanFetch(r *http.Request) bool {
	if !isMethodSafe(r.Method) {
		return false
	}
	return r.Header.Get("Authorization") == ""
}

// CanStore reports whether resp may be stored for r. When it may not, the
// reason is returned.
func (p *Policy) CanStore(r *http.Request, resp *Response) (bool, string) {
	if !isMethodSafe(r.Method) {
		return false, "unsafe_method"
	}
	// HEAD responses have no body and share the GET identifier.
	if r.Method == http.MethodHead {
		return false, "head_request"
	}

	cc := resp.CacheControl()
	if r.Header.Get("Authorization") != "" &&
		!cc.Has("s-maxage") &&
		!cc.Has("must-revalidate") &&
		!cc.Has("public") &&
		!cc.Has("private") {
		return false, "authorization"
	}

	switch resp.StatusCode {
	case http.StatusOK,
		http.StatusNonAuthoritativeInfo,
		http.StatusMultipleChoices,
		http.StatusMovedPermanently,
		http.StatusGone:
	default:
		return false, "status"
	}

	if cc.Has("no-store") || cc.Has("no-cache") {
		return false, "not_cacheable"
	}
	return true, ""
}

// resolveIdentifier returns the identifier named by the request's ETag header,
// or derives it from the URI and the Vary list. The request's own Vary header
// takes precedence over the list recorded when the entry was stored.
func (p *Policy) resolveIdentifier(ctx context.Context, r *http.Request) (string, error) {
	if etag := r.Header.Get("ETag"); etag != "" {
		return etag, nil
	}

	vary := RequestVary(r)
	if len(vary) == 0 {
		recorded, err := p.store.Vary(ctx, r)
		if err != nil {
			return "", err
		}
		vary = recorded
	}
	return EntryIdentifier(r, vary), nil
}

func isMethodSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
