package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestResponseFromHTTP(t *testing.T) {
	httpResp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	resp, err := ResponseFromHTTP(httpResp)
	if err != nil {
		t.Fatalf("ResponseFromHTTP() error = %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q, want %q", resp.Body, `{"ok":true}`)
	}

	// Body must be restored for the caller
	restored, _ := io.ReadAll(httpResp.Body)
	if string(restored) != `{"ok":true}` {
		t.Errorf("restored body = %q, want %q", restored, `{"ok":true}`)
	}

	// Header is a copy
	resp.Header.Set("Content-Type", "text/plain")
	if httpResp.Header.Get("Content-Type") != "application/json" {
		t.Error("ResponseFromHTTP should clone the header")
	}

	if _, err := ResponseFromHTTP(nil); err == nil {
		t.Error("ResponseFromHTTP(nil) should fail")
	}
}

func TestResponse_Send(t *testing.T) {
	resp := testResponse(http.StatusCreated, "created", "Content-Type", "text/plain", "X-Multi", "a", "X-Multi", "b")

	rec := httptest.NewRecorder()
	if err := resp.Send(rec); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if rec.Body.String() != "created" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "created")
	}
	if got := rec.Header().Values("X-Multi"); len(got) != 2 {
		t.Errorf("X-Multi = %v, want two values", got)
	}
}

func TestResponse_HTTPResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	resp := testResponse(http.StatusOK, "hello", "ETag", "abc")

	httpResp := resp.HTTPResponse(req)
	body, _ := io.ReadAll(httpResp.Body)
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
	if httpResp.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", httpResp.ContentLength)
	}
	if httpResp.Request != req {
		t.Error("Request not set")
	}
}

func TestResponse_Accessors(t *testing.T) {
	date := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	resp := testResponse(http.StatusOK, "",
		"Cache-Control", "max-age=60, s-maxage=30",
		"Date", date.Format(http.TimeFormat),
		"Expires", date.Add(time.Hour).Format(http.TimeFormat),
	)

	if got, ok := resp.MaxAge(); !ok || got != 60*time.Second {
		t.Errorf("MaxAge() = %v, %v, want 60s, true", got, ok)
	}
	if got, ok := resp.SharedMaxAge(); !ok || got != 30*time.Second {
		t.Errorf("SharedMaxAge() = %v, %v, want 30s, true", got, ok)
	}
	if got, ok := resp.Date(); !ok || !got.Equal(date) {
		t.Errorf("Date() = %v, %v, want %v, true", got, ok, date)
	}
	if got, ok := resp.Expires(); !ok || !got.Equal(date.Add(time.Hour)) {
		t.Errorf("Expires() = %v, %v, want %v, true", got, ok, date.Add(time.Hour))
	}
}

func TestResponse_Expires_Invalid(t *testing.T) {
	resp := testResponse(http.StatusOK, "", "Expires", "0")

	got, ok := resp.Expires()
	if !ok || !got.IsZero() {
		t.Errorf("Expires() = %v, %v, want zero time, true", got, ok)
	}

	if _, ok := testResponse(http.StatusOK, "").Expires(); ok {
		t.Error("Expires() without header should report absent")
	}
}

func TestResponse_Age(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		resp *Response
		want time.Duration
	}{
		{
			name: "explicit age header",
			resp: testResponse(http.StatusOK, "", "Age", "150", "Date", now.Format(http.TimeFormat)),
			want: 150 * time.Second,
		},
		{
			name: "age header grows with resident time",
			resp: testResponse(http.StatusOK, "", "Age", "10", "Date", now.Add(-40*time.Second).Format(http.TimeFormat)),
			want: 50 * time.Second,
		},
		{
			name: "age header without date",
			resp: testResponse(http.StatusOK, "", "Age", "30"),
			want: 30 * time.Second,
		},
		{
			name: "huge age header is capped",
			resp: testResponse(http.StatusOK, "", "Age", "10000000000"),
			want: 2147483648 * time.Second,
		},
		{
			name: "age header beyond int64 is capped",
			resp: testResponse(http.StatusOK, "", "Age", "99999999999999999999999", "Date", now.Format(http.TimeFormat)),
			want: 2147483648 * time.Second,
		},
		{
			name: "ancient date is capped",
			resp: testResponse(http.StatusOK, "", "Age", "2147483000", "Date", "Mon, 01 Jan 0001 00:00:00 GMT"),
			want: 2147483648 * time.Second,
		},
		{
			name: "negative age header ignored",
			resp: testResponse(http.StatusOK, "", "Age", "-20", "Date", now.Add(-40*time.Second).Format(http.TimeFormat)),
			want: 40 * time.Second,
		},
		{
			name: "derived from date",
			resp: testResponse(http.StatusOK, "", "Date", now.Add(-40*time.Second).Format(http.TimeFormat)),
			want: 40 * time.Second,
		},
		{
			name: "date in the future",
			resp: testResponse(http.StatusOK, "", "Date", now.Add(time.Minute).Format(http.TimeFormat)),
			want: 0,
		},
		{
			name: "no date",
			resp: testResponse(http.StatusOK, ""),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Age(now); got != tt.want {
				t.Errorf("Age() = %v, want %v", got, tt.want)
			}
		})
	}
}
