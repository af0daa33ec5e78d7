package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"minbar/internal/api"
	"minbar/internal/auth"
	"minbar/internal/models"
	"minbar/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *api.Handler) {
	t.Helper()
	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	handler := api.NewHandler(store, auth.NewSessionManager(0))
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, handler
}

func seedAndLogin(t *testing.T, srv *Server, handler *api.Handler, role models.Role) string {
	t.Helper()
	if _, err := handler.Store.CreateUser(storage.CreateUserParams{
		Username: "gatekeeper",
		Password: "gatekeeper pass",
		Role:     string(role),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": "gatekeeper", "password": "gatekeeper pass"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned no token")
	}
	return resp.Token
}

func TestPublicRoutes(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/", "/healthz", "/books", "/tips", "/posts", "/config/status", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d body=%s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestWritesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	body := bytes.NewBufferString(`{"title":"x","url":"y"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous POST status = %d body=%s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":"x","url":"y"}`))
	req.Header.Set("x-auth-token", "bogus")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token POST status = %d", rec.Code)
	}
}

func TestLoginThenWriteFlow(t *testing.T) {
	srv, handler := newTestServer(t, Config{})
	token := seedAndLogin(t, srv, handler, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":"Sahih Muslim","url":"https://example.org/muslim.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-auth-token", token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /books status = %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("x-auth-token", token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /auth/me status = %d", rec.Code)
	}

	// Superadmin surface stays closed to plain admins.
	req = httptest.NewRequest(http.MethodGet, "/auth/users", nil)
	req.Header.Set("x-auth-token", token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("GET /auth/users status = %d", rec.Code)
	}
}

func TestMaintenanceToggleThroughChain(t *testing.T) {
	srv, handler := newTestServer(t, Config{})
	token := seedAndLogin(t, srv, handler, models.RoleSuperadmin)

	req := httptest.NewRequest(http.MethodPost, "/config/maintenance", bytes.NewBufferString(`{"enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-auth-token", token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config/status", nil))
	if got := rec.Body.String(); !bytes.Contains([]byte(got), []byte(`"maintenance":true`)) {
		t.Fatalf("status body = %s", got)
	}
}

func TestSharedSecretModeThroughChain(t *testing.T) {
	srv, handler := newTestServer(t, Config{})
	keeper, err := auth.OpenSecretFile(t.TempDir()+"/admin.json", "door secret")
	if err != nil {
		t.Fatalf("open secret file: %v", err)
	}
	handler.Secrets = keeper
	handler.Auth = &api.SharedSecretAuthenticator{Secrets: keeper}

	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":"Tajwid","url":"https://example.org/tajwid.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-admin-pass", "door secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST with secret status = %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":"x","url":"y"}`))
	req.Header.Set("x-admin-pass", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong secret status = %d", rec.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if got := extractClientIP(req); got != "10.0.0.9" {
		t.Fatalf("remote addr ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := extractClientIP(req); got != "203.0.113.7" {
		t.Fatalf("forwarded ip = %q", got)
	}
}
