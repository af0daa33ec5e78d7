package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGenerated(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("response should carry a request id")
	}
}

func TestRequestIDHonoursCaller(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "trace-me-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "trace-me-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestRequestIDGeneratorFallback(t *testing.T) {
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "fixed-id" },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Fatalf("request id = %q", got)
	}
}
