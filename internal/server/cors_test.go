package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSEchoesAnyOriginByDefault(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Origin", "https://minbar.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://minbar.example" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestCORSAllowlistBlocksOthers(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://trusted.example"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Origin", "https://trusted.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("trusted origin status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("blocked origin status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "https://minbar.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-auth-token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "x-auth-token" {
		t.Fatalf("allow-headers = %q", got)
	}
}

func TestNormalizeOrigin(t *testing.T) {
	if _, err := normalizeOrigin("not a url"); err == nil {
		t.Fatal("missing scheme should be rejected")
	}
	got, err := normalizeOrigin(" HTTPS://Minbar.Example ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "https://minbar.example" {
		t.Fatalf("normalized = %q", got)
	}
}
