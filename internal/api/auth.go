package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"minbar/internal/auth"
	"minbar/internal/models"
	"minbar/internal/storage"
)

type contextKey string

const identityContextKey contextKey = "authenticatedIdentity"

// Identity is the resolved caller of an authenticated request. UserID is
// empty when the deployment runs on the shared admin secret.
type Identity struct {
	UserID   string
	Username string
	Role     models.Role
}

// IsAdmin reports whether the identity may manage site content.
func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin || id.Role == models.RoleSuperadmin
}

// ContextWithIdentity stores the authenticated identity in the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the authenticated identity if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// AuthError carries the HTTP status a failed authentication should map to.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func errUnauthorized(message string) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Message: message}
}

func errForbidden(message string) *AuthError {
	return &AuthError{Status: http.StatusForbidden, Message: message}
}

// Authenticator resolves the identity behind a request. Implementations
// return *AuthError on failure so the middleware can map the status.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// WriteAuthError renders a failed authentication with its proper status.
func WriteAuthError(w http.ResponseWriter, err error) {
	if authErr, ok := err.(*AuthError); ok {
		writeError(w, authErr.Status, authErr)
		return
	}
	writeError(w, http.StatusUnauthorized, err)
}

// SharedSecretAuthenticator accepts the site-wide admin password from the
// x-admin-pass header or a top-level "password" field in a JSON body. Every
// accepted request acts as the superadmin.
type SharedSecretAuthenticator struct {
	Secrets *auth.SecretKeeper
}

func (a *SharedSecretAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	if a == nil || a.Secrets == nil {
		return Identity{}, errForbidden("admin password is not configured")
	}
	candidate := strings.TrimSpace(r.Header.Get("x-admin-pass"))
	if candidate == "" {
		candidate = passwordFromBody(r)
	}
	if candidate == "" {
		return Identity{}, errForbidden("admin password required")
	}
	if err := a.Secrets.Verify(candidate); err != nil {
		return Identity{}, errForbidden("invalid admin password")
	}
	return Identity{Username: "admin", Role: models.RoleSuperadmin}, nil
}

// passwordFromBody peeks at a JSON body for a "password" field and restores
// the body so the handler can decode it again.
func passwordFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var probe struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.Password)
}

// CredentialedAuthenticator verifies the x-username/x-password header pair
// against the user store on every request.
type CredentialedAuthenticator struct {
	Store storage.Repository
}

func (a *CredentialedAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	username := strings.TrimSpace(r.Header.Get("x-username"))
	password := r.Header.Get("x-password")
	if username == "" || password == "" {
		return Identity{}, errUnauthorized("username and password headers required")
	}
	user, err := a.Store.AuthenticateUser(username, password)
	if err != nil {
		return Identity{}, errUnauthorized("invalid username or password")
	}
	return Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// TokenSessionAuthenticator resolves a session token minted at login.
type TokenSessionAuthenticator struct {
	Sessions *auth.SessionManager
	Store    storage.Repository
}

func (a *TokenSessionAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	token := ExtractToken(r)
	if token == "" {
		return Identity{}, errUnauthorized("missing session token")
	}
	userID, ok, err := a.Sessions.Validate(token)
	if err != nil {
		return Identity{}, fmt.Errorf("validate session: %w", err)
	}
	if !ok {
		return Identity{}, errUnauthorized("invalid or expired session")
	}
	user, exists, err := a.Store.GetUser(userID)
	if err != nil {
		return Identity{}, fmt.Errorf("load session user: %w", err)
	}
	if !exists {
		return Identity{}, errUnauthorized("account not found")
	}
	return Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// ExtractToken pulls the session token from the x-auth-token header, a
// bearer Authorization header, or the session cookie, in that order.
func ExtractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("x-auth-token")); token != "" {
		return token
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return Identity{}, false
	}
	return identity, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return Identity{}, false
	}
	if !identity.IsAdmin() {
		writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return Identity{}, false
	}
	return identity, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role models.Role) (Identity, bool) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return Identity{}, false
	}
	if identity.Role != role {
		writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return Identity{}, false
	}
	return identity, true
}
