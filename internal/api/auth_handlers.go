package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"minbar/internal/models"
	"minbar/internal/storage"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse keeps the flat shape legacy clients expect: the token and
// identity ride at the top level next to ok.
type loginResponse struct {
	OK        bool        `json:"ok"`
	Token     string      `json:"token"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("username and password are required"))
		return
	}

	user, err := h.Store.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		user, err = h.bootstrapSuperadmin(req.Username, req.Password)
	}
	if err != nil {
		h.metricsRecorder().ObserveAuthEvent("login_failure")
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid username or password"))
		return
	}

	token, expiresAt, err := h.sessionManager().Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create session: %w", err))
		return
	}
	h.setSessionCookie(w, r, token, expiresAt)
	h.metricsRecorder().ObserveAuthEvent("login_success")

	resp := loginResponse{OK: true, Token: token, Username: user.Username, Role: user.Role}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// bootstrapSuperadmin materialises the first account when a login arrives
// with the legacy shared secret while the user store is still empty.
func (h *Handler) bootstrapSuperadmin(username, password string) (models.User, error) {
	if h.Secrets == nil {
		return models.User{}, fmt.Errorf("no bootstrap secret configured")
	}
	count, err := h.Store.CountUsers()
	if err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, fmt.Errorf("user store already initialised")
	}
	if !strings.EqualFold(username, h.bootstrapUsername()) {
		return models.User{}, fmt.Errorf("bootstrap credentials rejected")
	}
	if err := h.Secrets.Verify(password); err != nil {
		return models.User{}, fmt.Errorf("bootstrap credentials rejected")
	}
	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username: h.bootstrapUsername(),
		Password: password,
		Role:     string(models.RoleSuperadmin),
	})
	if err != nil {
		return models.User{}, err
	}
	h.metricsRecorder().ObserveAuthEvent("superadmin_bootstrapped")
	return user, nil
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if token := ExtractToken(r); token != "" {
		if err := h.sessionManager().Revoke(token); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("revoke session: %w", err))
			return
		}
	}
	h.ClearSessionCookie(w, r)
	h.metricsRecorder().ObserveAuthEvent("logout")
	writeMessage(w, http.StatusOK, "logged out")
}

type identityResponse struct {
	ID       string      `json:"id,omitempty"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, identityResponse{
		ID:       identity.UserID,
		Username: identity.Username,
		Role:     identity.Role,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	// Password is the legacy spelling of currentPassword.
	Password string `json:"password,omitempty"`
}

// ChangePassword serves both /auth/change-password (own credential) and
// /auth/change-password/{username} (superadmin resetting another account).
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	target := strings.Trim(strings.TrimPrefix(r.URL.Path, "/auth/change-password"), "/")
	if target != "" {
		h.changePasswordFor(w, r, target)
		return
	}

	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	current := req.CurrentPassword
	if current == "" {
		current = req.Password
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("newPassword is required"))
		return
	}

	if identity.UserID == "" {
		// Shared-secret deployments rotate the site password instead.
		if h.Secrets == nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("admin password is not configured"))
			return
		}
		if err := h.Secrets.Rotate(current, req.NewPassword); err != nil {
			writeError(w, http.StatusForbidden, err)
			return
		}
		h.metricsRecorder().ObserveAuthEvent("secret_rotated")
		writeMessage(w, http.StatusOK, "admin password updated")
		return
	}

	if _, err := h.Store.AuthenticateUser(identity.Username, current); err != nil {
		writeError(w, http.StatusForbidden, fmt.Errorf("current password is incorrect"))
		return
	}
	if _, err := h.Store.SetUserPassword(identity.Username, req.NewPassword); err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveAuthEvent("password_changed")
	writeMessage(w, http.StatusOK, "password updated")
}

func (h *Handler) changePasswordFor(w http.ResponseWriter, r *http.Request, username string) {
	if _, ok := h.requireRole(w, r, models.RoleSuperadmin); !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("newPassword is required"))
		return
	}
	if _, err := h.Store.SetUserPassword(username, req.NewPassword); err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveAuthEvent("password_reset")
	writeMessage(w, http.StatusOK, fmt.Sprintf("password updated for %s", username))
}

type createAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleSuperadmin); !ok {
		return
	}
	var req createAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveAuthEvent("admin_created")
	writeData(w, http.StatusOK, user.Public())
}

// Users lists accounts at GET /auth/users and removes one at
// DELETE /auth/users/{id}. Both require the superadmin role.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleSuperadmin); !ok {
		return
	}
	users, err := h.Store.ListUsers()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	public := make([]models.PublicUser, 0, len(users))
	for _, user := range users {
		public = append(public, user.Public())
	}
	writeData(w, http.StatusOK, public)
}

func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "/auth/users")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	identity, ok := h.requireRole(w, r, models.RoleSuperadmin)
	if !ok {
		return
	}
	if identity.UserID == id {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cannot delete your own account"))
		return
	}
	if err := h.Store.DeleteUser(id); err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveAuthEvent("admin_deleted")
	writeMessage(w, http.StatusOK, "user deleted")
}
