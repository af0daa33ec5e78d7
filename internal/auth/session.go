package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// SessionStore defines the persistence contract for session tokens.
// Implementations receive the plaintext token; durable stores are expected
// to hash it before writing.
type SessionStore interface {
	Save(record SessionRecord) error
	Get(token string) (SessionRecord, bool, error)
	Delete(token string) error
	PurgeExpired(now time.Time) error
}

// SessionRecord captures a session row retrieved from the backing store.
// A zero ExpiresAt marks a session that never expires.
type SessionRecord struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the record has lapsed at the given instant.
func (r SessionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenLength sets the token length used for newly created sessions.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// SessionManager coordinates session creation and validation against a
// backing store.
type SessionManager struct {
	store        SessionStore
	ttl          time.Duration
	tokenLength  int
	tokenFactory func(int) (string, error)
}

// NewSessionManager constructs a SessionManager with the provided TTL.
// A TTL of zero or less means issued tokens remain valid until revoked.
// When no store is supplied the manager defaults to an in-memory store.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	manager := &SessionManager{
		ttl:          ttl,
		tokenLength:  32,
		tokenFactory: generateToken,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Create issues a new session token for the provided user identifier. The
// returned expiry is zero when the manager has no TTL configured.
func (m *SessionManager) Create(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token, err := m.tokenFactory(m.tokenLength)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	record := SessionRecord{Token: token, UserID: userID, CreatedAt: now}
	if m.ttl > 0 {
		record.ExpiresAt = now.Add(m.ttl)
	}
	if err := m.store.Save(record); err != nil {
		return "", time.Time{}, err
	}
	return token, record.ExpiresAt, nil
}

// Validate checks the backing store for the provided token and returns the
// associated user when the session exists and has not lapsed.
func (m *SessionManager) Validate(token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	record, ok, err := m.store.Get(token)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	if record.Expired(time.Now()) {
		_ = m.store.Delete(token)
		return "", false, nil
	}
	return record.UserID, true, nil
}

// Revoke deletes the session token from the backing store.
func (m *SessionManager) Revoke(token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(token)
}

// PurgeExpired removes any expired sessions from the backing store.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(time.Now())
}

// Ping verifies the underlying session store is reachable when it exposes
// a ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.store == nil {
		return nil
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ErrInvalidUserID is returned when attempting to create a session without a user identifier.
var ErrInvalidUserID = errors.New("userID is required")
