package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is a captured HTTP response as the cache sees it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse returns an empty-bodied response with the given status.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       []byte{},
	}
}

// ResponseFromHTTP captures an *http.Response.
// The response body is consumed and restored so the caller can still read it.
func ResponseFromHTTP(resp *http.Response) (*Response, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		resp.Body.Close()
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// HTTPResponse converts the response back into an *http.Response for req.
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// Send writes the response to w.
func (r *Response) Send(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range r.Header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(r.StatusCode)
	if len(r.Body) == 0 || !bodyAllowed(r.StatusCode) {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       append([]byte(nil), r.Body...),
	}
}

// CacheControl returns the parsed Cache-Control directives of the response.
func (r *Response) CacheControl() CacheControl {
	return ParseCacheControl(r.Header.Values("Cache-Control"))
}

// MaxAge returns the max-age directive.
func (r *Response) MaxAge() (time.Duration, bool) {
	secs, ok := r.CacheControl().Seconds("max-age")
	return time.Duration(secs) * time.Second, ok
}

// SharedMaxAge returns the s-maxage directive.
func (r *Response) SharedMaxAge() (time.Duration, bool) {
	secs, ok := r.CacheControl().Seconds("s-maxage")
	return time.Duration(secs) * time.Second, ok
}

// Date returns the parsed Date header.
func (r *Response) Date() (time.Time, bool) {
	return parseHTTPTime(r.Header.Get("Date"))
}

// Expires returns the parsed Expires header.
// An Expires value that cannot be parsed is reported as present with the
// zero time, i.e. already expired.
func (r *Response) Expires() (time.Time, bool) {
	value := r.Header.Get("Expires")
	if value == "" {
		return time.Time{}, false
	}
	t, ok := parseHTTPTime(value)
	if !ok {
		return time.Time{}, true
	}
	return t, true
}

// Age returns the current age of the response: the Age header value plus
// the time elapsed since Date. Never negative and capped at 2147483648 seconds.
func (r *Response) Age(now time.Time) time.Duration {
	var age time.Duration
	if secs, ok := parseDeltaSeconds(r.Header.Get("Age")); ok {
		age = time.Duration(secs) * time.Second
	}

	if date, ok := r.Date(); ok {
		if resident := now.Sub(date); resident > 0 {
			age += min(resident, maxDelta)
		}
	}
	return min(age, maxDelta)
}

func parseHTTPTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
