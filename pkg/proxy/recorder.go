package proxy

import (
	"bytes"
	"net/http"

	"github.com/Sternrassler/proxy-cache/pkg/cache"
)

// responseRecorder buffers a downstream response so it can be inspected and
// stored before being sent to the client.
type responseRecorder struct {
	header      http.Header
	snapshot    http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

// Implementation of http.ResponseWriter
func (rr *responseRecorder) Header() http.Header {
	return rr.header
}

// Implementation of http.ResponseWriter
func (rr *responseRecorder) WriteHeader(statusCode int) {
	if rr.wroteHeader {
		return
	}
	rr.wroteHeader = true
	rr.status = statusCode
	// headers changed after WriteHeader are not sent
	rr.snapshot = rr.header.Clone()
}

// Implementation of http.ResponseWriter
func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	return rr.body.Write(b)
}

// Flush is a no-op; the response is sent once complete.
func (rr *responseRecorder) Flush() {}

// Response returns the recorded response.
func (rr *responseRecorder) Response() *cache.Response {
	header := rr.snapshot
	if !rr.wroteHeader {
		header = rr.header.Clone()
	}
	return &cache.Response{
		StatusCode: rr.status,
		Header:     header,
		Body:       rr.body.Bytes(),
	}
}
