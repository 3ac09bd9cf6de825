package cache

import "time"

// IsFresh reports whether a cached response may still be served.
//
// With s-maxage or max-age the response is stale once its age exceeds
// maxAge - min-fresh + max-stale (directives read from the response itself).
// A response older than maxAge but within that budget is served with
// "Warning: 110 Response is stale". Without either directive the response is
// stale when Expires is before Date.
func (p *Policy) IsFresh(resp *Response) bool {
	maxAge, ok := resp.SharedMaxAge()
	if !ok {
		maxAge, ok = resp.MaxAge()
	}

	if ok {
		cc := resp.CacheControl()
		minFresh, _ := cc.Seconds("min-fresh")
		maxStale, _ := cc.Seconds("max-stale")
		budget := maxAge - time.Duration(minFresh)*time.Second + time.Duration(maxStale)*time.Second

		age := resp.Age(p.now())
		if age > budget {
			return false
		}
		if age > maxAge {
			resp.Header.Set("Warning", "110 Response is stale")
		}
		// max-age overrides Expires
		return true
	}

	expires, ok := resp.Expires()
	if !ok {
		return true
	}
	date, _ := resp.Date()
	return !expires.Before(date)
}
