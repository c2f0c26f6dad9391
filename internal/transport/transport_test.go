package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDoJSON_MergesHeadersAndResolvesPath(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/base", srv.Client())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	c.DefaultHeaders.Set("X-Default", "d")

	hdr := make(http.Header)
	hdr.Set("X-Per-Request", "p")
	raw, err := c.DoJSON(context.Background(), http.MethodPost, "/v1/things", hdr, map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("DoJSON() err=%v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("raw=%s", raw)
	}

	if got.URL.Path != "/base/v1/things" {
		t.Fatalf("path=%q", got.URL.Path)
	}
	if got.Header.Get("X-Default") != "d" || got.Header.Get("X-Per-Request") != "p" {
		t.Fatalf("headers=%v", got.Header)
	}
	if ua := got.Header.Get("User-Agent"); !strings.HasPrefix(ua, "llmx/") {
		t.Fatalf("user-agent=%q", ua)
	}
	if got.Header.Get("X-Request-Id") == "" {
		t.Fatalf("request id missing")
	}
}

func TestDoJSON_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	raw, err := c.DoJSON(context.Background(), http.MethodPost, "/v1/x", nil, nil)
	var se *HTTPStatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v, want *HTTPStatusError", err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status=%d", se.StatusCode)
	}
	if string(se.Body) != `{"error":"slow down"}` || string(raw) != string(se.Body) {
		t.Fatalf("body=%s", se.Body)
	}
	if se.Header.Get("Retry-After") != "3" {
		t.Fatalf("header=%v", se.Header)
	}
}

func TestDoStream_CallerOwnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: x\n\n"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	resp, err := c.DoStream(context.Background(), http.MethodPost, "/v1/x", nil, nil)
	if err != nil {
		t.Fatalf("DoStream() err=%v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "data: x\n\n" {
		t.Fatalf("raw=%q", raw)
	}
}

func TestDoStream_ErrorStatusReadsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	_, err = c.DoStream(context.Background(), http.MethodPost, "/v1/x", nil, nil)
	var se *HTTPStatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v", err)
	}
	if se.StatusCode != http.StatusBadRequest || string(se.Body) != "nope" {
		t.Fatalf("se=%+v", se)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct{ a, b, want string }{
		{"", "/v1/x", "/v1/x"},
		{"/base", "/v1/x", "/base/v1/x"},
		{"/base/", "/v1/x", "/base/v1/x"},
		{"/base", "v1/x", "/base/v1/x"},
		{"/base", "", "/base"},
	}
	for _, tc := range tests {
		if got := joinPath(tc.a, tc.b); got != tc.want {
			t.Fatalf("joinPath(%q,%q)=%q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}
