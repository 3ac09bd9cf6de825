package cachecontrol

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Composer applies the first matching Rule to requests and responses.
// Validators are derived from the rule alone: the ETag from its name and
// Last-Modified from its configured time, or the time the composer was
// created. Nothing is recorded between requests.
type Composer struct {
	rules   []Rule
	logger  zerolog.Logger
	started time.Time
}

// NewComposer creates a composer for the given rules, evaluated in order.
func NewComposer(rules []Rule) *Composer {
	return &Composer{
		rules:   rules,
		logger:  log.With().Str("component", "cache-control").Logger(),
		started: time.Now().UTC().Truncate(time.Second),
	}
}

// Match returns the first rule matching req.
func (c *Composer) Match(req *http.Request) (Rule, bool) {
	for _, rule := range c.rules {
		if rule.Matches(req) {
			return rule, true
		}
	}
	return Rule{}, false
}

// LastModified returns the Last-Modified time announced for rule.
func (c *Composer) LastModified(rule Rule) time.Time {
	if !rule.LastModified.IsZero() {
		return rule.LastModified.UTC().Truncate(time.Second)
	}
	return c.started
}

// Middleware short-circuits must-revalidate requests whose validators match
// the rule: 304 for GET/HEAD, 412 otherwise.
func (c *Composer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := c.Match(r)
		if !ok || !rule.MustRevalidate || rule.Headers != "" {
			next.ServeHTTP(w, r)
			return
		}

		if modified(r, rule.ETag(), c.LastModified(rule)) {
			next.ServeHTTP(w, r)
			return
		}

		status := http.StatusPreconditionFailed
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			status = http.StatusNotModified
		}
		c.logger.Debug().
			Str("rule", rule.Name).
			Str("path", r.URL.Path).
			Int("status_code", status).
			Msg("Validators match")
		w.WriteHeader(status)
	})
}

// ModifyResponse sets the caching headers of the rule matching resp.Request.
// It has the signature of httputil.ReverseProxy.ModifyResponse.
func (c *Composer) ModifyResponse(resp *http.Response) error {
	if resp.Request == nil {
		return nil
	}
	rule, ok := c.Match(resp.Request)
	if !ok {
		return nil
	}

	c.Apply(rule, resp.Header, c.LastModified(rule))
	return nil
}

// Apply writes the headers of rule into header.
func (c *Composer) Apply(rule Rule, header http.Header, lastModified time.Time) {
	if rule.Headers != "" {
		header.Set("Cache-Control", rule.Headers)
		return
	}

	header.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))

	if rule.NoCache || rule.NoStore {
		header.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		return
	}

	var directives []string
	if rule.Public && !rule.Private {
		directives = append(directives, "public")
	} else {
		directives = append(directives, "private")
	}
	if rule.MustRevalidate {
		header.Set("ETag", `"`+rule.ETag()+`"`)
		directives = append(directives, "must-revalidate")
	}
	if rule.ProxyRevalidate {
		directives = append(directives, "proxy-revalidate")
	}
	directives = append(directives, "max-age="+strconv.Itoa(rule.MaxAge))
	if rule.SMaxAge > 0 {
		directives = append(directives, "s-maxage="+strconv.Itoa(rule.SMaxAge))
	}

	header.Set("Cache-Control", strings.Join(directives, ", "))
}

// modified reports whether the request's validators differ from the rule's.
// If-None-Match takes precedence over If-Modified-Since.
func modified(r *http.Request, etag string, lastModified time.Time) bool {
	if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" {
		return strings.ReplaceAll(ifNoneMatch, `"`, "") != etag
	}
	if ifModifiedSince := r.Header.Get("If-Modified-Since"); ifModifiedSince != "" {
		t, err := http.ParseTime(ifModifiedSince)
		return err != nil || lastModified.After(t)
	}
	return true
}
