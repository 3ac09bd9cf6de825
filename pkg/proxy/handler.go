// Package proxy wires the cache policy into an HTTP request pipeline.
package proxy

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/proxy-cache/pkg/cache"
)

// Tagger returns the tags to store a response under.
type Tagger func(r *http.Request, resp *cache.Response) []string

// HeaderTagger reads tags from a comma-separated response header (e.g. Cache-Tag)
// and removes the header so it never reaches the client. Invalid tags are dropped.
func HeaderTagger(name string) Tagger {
	return func(r *http.Request, resp *cache.Response) []string {
		values := cache.ListHeader(resp.Header, name)
		resp.Header.Del(name)

		tags := make([]string, 0, len(values))
		for _, tag := range values {
			if cache.IsValidTag(tag) {
				tags = append(tags, tag)
			}
		}
		return tags
	}
}

// Options configures a Handler.
type Options struct {
	// Tagger assigns tags to stored responses (default: no tags).
	Tagger Tagger

	// Logger receives pipeline events (default: global logger, component=proxy).
	Logger *zerolog.Logger
}

// Handler answers requests from the cache when possible and otherwise
// dispatches to next, storing the result for later requests.
type Handler struct {
	policy *cache.Policy
	next   http.Handler
	tagger Tagger
	logger zerolog.Logger
}

// New creates a caching handler in front of next.
func New(policy *cache.Policy, next http.Handler, opts Options) *Handler {
	if policy == nil {
		panic("cache policy cannot be nil")
	}

	logger := log.With().Str("component", "proxy").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Handler{
		policy: policy,
		next:   next,
		tagger: opts.Tagger,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	cached, err := h.policy.FetchResponse(ctx, r)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Cache fetch failed, forwarding request")
	} else if cached != nil {
		if err := cached.Send(w); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to write cached response")
		}
		observe(r.Method, cached, start)
		return
	}

	rec := newResponseRecorder()
	h.next.ServeHTTP(rec, r)
	resp := rec.Response()

	var tags []string
	if h.tagger != nil {
		tags = h.tagger(r, resp)
	}

	if err := h.policy.StoreResponse(ctx, r, resp, tags...); err != nil {
		h.logger.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Failed to store response")
	}

	if err := resp.Send(w); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write response")
	}
	observe(r.Method, resp, start)
}

func observe(method string, resp *cache.Response, start time.Time) {
	outcome := resp.Header.Get(cache.HeaderProxyCache)
	if outcome == "" {
		outcome = "bypass"
	}
	Requests.WithLabelValues(method, outcome).Inc()
	RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
