package api

import (
	"context"
	"net/http"

	"minbar/internal/auth"
	"minbar/internal/feed"
	"minbar/internal/media"
	"minbar/internal/observability/metrics"
	"minbar/internal/storage"
)

// defaultBootstrapUsername is the account name the legacy shared-secret
// login materialises on first use.
const defaultBootstrapUsername = "admin"

// Pinger is implemented by components that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Auth     Authenticator
	Secrets  *auth.SecretKeeper
	Media    media.Store
	Feed     *feed.Client
	Metrics  *metrics.Recorder

	// RateLimiter is only consulted by the health endpoint.
	RateLimiter Pinger

	SessionCookiePolicy SessionCookiePolicy

	// BootstrapUsername is the account created when a login arrives with
	// the shared secret while the user store is still empty.
	BootstrapUsername string

	// MaxUploadBytes bounds multipart upload bodies. Zero means the
	// default of 32 MiB.
	MaxUploadBytes int64
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(0)
	}
	h := &Handler{Store: store, Sessions: sessions}
	h.Auth = &TokenSessionAuthenticator{Sessions: sessions, Store: store}
	return h
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(0)
	}
	return h.Sessions
}

// Authenticator returns the configured credential checker, defaulting to
// token sessions.
func (h *Handler) Authenticator() Authenticator {
	if h.Auth == nil {
		h.Auth = &TokenSessionAuthenticator{Sessions: h.sessionManager(), Store: h.Store}
	}
	return h.Auth
}

func (h *Handler) metricsRecorder() *metrics.Recorder {
	if h.Metrics == nil {
		return metrics.Default()
	}
	return h.Metrics
}

func (h *Handler) bootstrapUsername() string {
	if h.BootstrapUsername != "" {
		return h.BootstrapUsername
	}
	return defaultBootstrapUsername
}

// Index reports liveness at the root path.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, errNotFoundPath(r.URL.Path))
		return
	}
	writeMessage(w, http.StatusOK, "minbar api is running")
}
