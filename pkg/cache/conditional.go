package cache

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// entityTags is a parsed If-Match or If-None-Match header.
type entityTags struct {
	present bool
	any     bool // the header is exactly "*"
	tags    []string
}

func parseEntityTags(header http.Header, field string) entityTags {
	list := ListHeader(header, field)
	if len(list) == 0 {
		return entityTags{}
	}
	if len(list) == 1 && list[0] == "*" {
		return entityTags{present: true, any: true}
	}

	tags := make([]string, 0, len(list))
	for _, tag := range list {
		tag = strings.TrimPrefix(tag, "W/")
		tags = append(tags, strings.Trim(tag, "\""))
	}
	return entityTags{present: true, tags: tags}
}

func (e entityTags) contains(id string) bool {
	for _, tag := range e.tags {
		if tag == id {
			return true
		}
	}
	return false
}

// has reports whether the fetch path should continue to get for id.
//
// If-Match is evaluated first and exclusively. A list not naming id counts as
// present so that get can answer 412. If-None-Match naming id counts as
// present regardless of the backend so that get can answer 304/412.
func (p *Policy) has(ctx context.Context, r *http.Request, id string) (bool, error) {
	ifMatch := parseEntityTags(r.Header, "If-Match")
	switch {
	case ifMatch.any:
		return true, nil
	case ifMatch.present:
		if !ifMatch.contains(id) {
			return true, nil
		}
		return p.store.Has(ctx, id)
	}

	ifNoneMatch := parseEntityTags(r.Header, "If-None-Match")
	if ifNoneMatch.present {
		if !ifNoneMatch.any && ifNoneMatch.contains(id) {
			return true, nil
		}
		r.Header.Del("If-Modified-Since")
	}

	return p.store.Has(ctx, id)
}

// get returns the stored entry for id or a conditional placeholder.
// The ETag of the returned response is always id.
func (p *Policy) get(ctx context.Context, r *http.Request, id string) (*Response, error) {
	var resp *Response

	ifMatch := parseEntityTags(r.Header, "If-Match")
	ifNoneMatch := parseEntityTags(r.Header, "If-None-Match")

	switch {
	case ifMatch.any:
		found, err := p.store.Has(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			resp = p.placeholder(http.StatusPreconditionFailed)
		}
	case ifMatch.present:
		if !ifMatch.contains(id) {
			resp = p.placeholder(http.StatusPreconditionFailed)
		}
	case ifNoneMatch.any || ifNoneMatch.contains(id):
		if isMethodSafe(r.Method) {
			resp = p.placeholder(http.StatusNotModified)
		} else {
			resp = p.placeholder(http.StatusPreconditionFailed)
		}
	}

	if resp == nil {
		var err error
		resp, err = p.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	resp.Header.Set("ETag", id)
	return resp, nil
}

func (p *Policy) placeholder(status int) *Response {
	ConditionalResponses.WithLabelValues(strconv.Itoa(status)).Inc()
	return NewResponse(status)
}
