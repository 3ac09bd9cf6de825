package cache

import (
	"bytes"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestMarshalResponse_Format(t *testing.T) {
	resp := testResponse(http.StatusOK, "body", "Content-Type", "text/html", "X-Multi", "one", "X-Multi", "two")

	data, err := MarshalResponse(resp)
	if err != nil {
		t.Fatalf("MarshalResponse() error = %v", err)
	}

	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"X-Multi: one\r\n" +
		"X-Multi: two\r\n" +
		"\r\n" +
		"body"
	if string(data) != want {
		t.Errorf("MarshalResponse() = %q, want %q", data, want)
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{
			name: "plain",
			resp: testResponse(http.StatusOK, "hello world", "Content-Type", "text/plain"),
		},
		{
			name: "multi-valued headers keep order",
			resp: testResponse(http.StatusOK, "x",
				"Set-Cookie", "b=2", "Set-Cookie", "a=1", "Cache-Control", "max-age=60, public"),
		},
		{
			name: "empty body",
			resp: testResponse(http.StatusMovedPermanently, "", "Location", "http://example.com/new"),
		},
		{
			name: "no headers",
			resp: testResponse(http.StatusGone, "gone"),
		},
		{
			name: "binary body with blank lines",
			resp: testResponse(http.StatusOK, "\r\n\r\n\x00\xff\x10 end\r\n", "Content-Type", "application/octet-stream"),
		},
		{
			name: "status without reason phrase",
			resp: testResponse(299, "odd"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalResponse(tt.resp)
			if err != nil {
				t.Fatalf("MarshalResponse() error = %v", err)
			}
			got, err := UnmarshalResponse(data)
			if err != nil {
				t.Fatalf("UnmarshalResponse() error = %v", err)
			}

			if got.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.resp.StatusCode)
			}
			if !reflect.DeepEqual(got.Header, tt.resp.Header) {
				t.Errorf("Header = %v, want %v", got.Header, tt.resp.Header)
			}
			if !bytes.Equal(got.Body, tt.resp.Body) {
				t.Errorf("Body = %q, want %q", got.Body, tt.resp.Body)
			}
		})
	}
}

func TestUnmarshalResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no protocol", "200 OK\r\n\r\n"},
		{"bad status code", "HTTP/1.1 abc OK\r\n\r\n"},
		{"short status code", "HTTP/1.1 20 OK\r\n\r\n"},
		{"bad header line", "HTTP/1.1 200 OK\r\nnot a header\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalResponse([]byte(tt.data))
			if !errors.Is(err, ErrMalformedEntry) {
				t.Errorf("UnmarshalResponse() error = %v, want ErrMalformedEntry", err)
			}
		})
	}
}

func TestMarshalResponse_Nil(t *testing.T) {
	if _, err := MarshalResponse(nil); err == nil || !strings.Contains(err.Error(), "nil") {
		t.Errorf("MarshalResponse(nil) error = %v, want nil response error", err)
	}
}
