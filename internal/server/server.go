package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"minbar/internal/api"
	"minbar/internal/observability/metrics"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr      string
	TLS       TLSConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	Logger    *slog.Logger
	Metrics   *metrics.Recorder

	// MediaDir, when set, is served under /media/ for deployments using
	// the local upload backend.
	MediaDir string
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	rateLimiter *rateLimiter
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/books", handler.Books)
	mux.HandleFunc("/books/", handler.BookByID)
	mux.HandleFunc("/tips", handler.Tips)
	mux.HandleFunc("/tips/", handler.TipByID)
	mux.HandleFunc("/posts", handler.Posts)
	mux.HandleFunc("/posts/", handler.PostByID)
	mux.HandleFunc("/uploadBook", handler.UploadBook)
	mux.HandleFunc("/uploadVideo", handler.UploadVideo)
	mux.HandleFunc("/uploadTip", handler.UploadTip)
	mux.HandleFunc("/auth/login", handler.Login)
	mux.HandleFunc("/auth/logout", handler.Logout)
	mux.HandleFunc("/auth/me", handler.Me)
	mux.HandleFunc("/auth/change-password", handler.ChangePassword)
	mux.HandleFunc("/auth/change-password/", handler.ChangePassword)
	mux.HandleFunc("/auth/create-admin", handler.CreateAdmin)
	mux.HandleFunc("/auth/users", handler.Users)
	mux.HandleFunc("/auth/users/", handler.UserByID)
	mux.HandleFunc("/config/status", handler.ConfigStatus)
	mux.HandleFunc("/config/maintenance", handler.SetMaintenance)
	mux.HandleFunc("/youtube-feed", handler.YouTubeFeed)

	if cfg.MediaDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.MediaDir))
		mux.Handle("/media/", http.StripPrefix("/media/", fileServer))
	}

	mux.HandleFunc("/", handler.Index)

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	rl := newRateLimiter(cfg.RateLimit)
	if handler.RateLimiter == nil {
		handler.RateLimiter = rl
	}

	handlerChain := http.Handler(mux)
	handlerChain = authMiddleware(handler, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = corsMiddleware(corsPolicy, cfg.Logger, handlerChain)
	handlerChain = rateLimitMiddleware(rl, cfg.Logger, handlerChain)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		rateLimiter: rl,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}

	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := metrics.NewResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		loggerWithRequestContext(r.Context(), logger).Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.Status(),
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r))
	})
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			writeMiddlewareError(w, http.StatusTooManyRequests, "global rate limit exceeded")
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/auth/login" {
			ip := extractClientIP(r)
			allowed, retryAfter, err := rl.AllowLogin(ip)
			if err != nil {
				if logger != nil {
					logger.Error("rate limiter failure", "error", err)
				}
				writeMiddlewareError(w, http.StatusServiceUnavailable, "rate limit failure")
				return
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				}
				writeMiddlewareError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// publicRoute reports whether a request may pass without credentials.
// Content listings stay open; every write and the admin surface do not.
func publicRoute(r *http.Request) bool {
	path := r.URL.Path
	switch path {
	case "/", "/healthz", "/metrics", "/config/status", "/youtube-feed", "/auth/login", "/auth/logout":
		return true
	case "/books", "/tips", "/posts":
		return r.Method == http.MethodGet || r.Method == http.MethodHead
	}
	return strings.HasPrefix(path, "/media/")
}

func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicRoute(r) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := handler.Authenticator().Authenticate(r)
		if err != nil {
			var authErr *api.AuthError
			if !errors.As(err, &authErr) {
				api.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			api.WriteAuthError(w, err)
			return
		}
		ctx := api.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
