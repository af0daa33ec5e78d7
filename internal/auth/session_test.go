package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	manager := NewSessionManager(0)
	token, expiresAt, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.IsZero() {
		t.Fatalf("expected no expiry without TTL, got %v", expiresAt)
	}
	userID, ok, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("Validate = %q, %v; want user-1, true", userID, ok)
	}
	if err := manager.Revoke(token); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("expected token to be invalid after revocation")
	}
}

func TestSessionCreateRequiresUser(t *testing.T) {
	manager := NewSessionManager(0)
	if _, _, err := manager.Create(""); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestSessionExpiryWithTTL(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Hour, WithStore(store))
	token, expiresAt, err := manager.Create("user-2")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("expected expiry when TTL configured")
	}
	record, ok, err := store.Get(token)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	record.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Save(record); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("expected lapsed session to be rejected")
	}
	if _, ok, _ := store.Get(token); ok {
		t.Fatal("expected lapsed session to be deleted on validation")
	}
}

func TestMemoryStorePurgeExpired(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Now()
	_ = store.Save(SessionRecord{Token: "live", UserID: "u1", CreatedAt: now})
	_ = store.Save(SessionRecord{Token: "stale", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)})
	if err := store.PurgeExpired(now); err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if _, ok, _ := store.Get("live"); !ok {
		t.Fatal("unexpired session should survive purge")
	}
	if _, ok, _ := store.Get("stale"); ok {
		t.Fatal("expired session should be purged")
	}
}

func TestFileSessionStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("NewFileSessionStore returned error: %v", err)
	}
	record := SessionRecord{Token: "plain-token", UserID: "user-3", CreatedAt: time.Now().UTC()}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, ok, err := store.Get("plain-token")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.UserID != "user-3" {
		t.Fatalf("unexpected user id %q", got.UserID)
	}

	reopened, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if _, ok, _ := reopened.Get("plain-token"); !ok {
		t.Fatal("expected session to survive reopen")
	}
	if err := reopened.Delete("plain-token"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok, _ := reopened.Get("plain-token"); ok {
		t.Fatal("expected session to be deleted")
	}
}

func TestFileSessionStoreHashesTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := NewFileSessionStore(path)
	if err != nil {
		t.Fatalf("NewFileSessionStore returned error: %v", err)
	}
	if err := store.Save(SessionRecord{Token: "visible-token", UserID: "u", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if strings.Contains(string(payload), "visible-token") {
		t.Fatal("plaintext token should not appear in the session file")
	}
}

func TestSecretKeeperSeedVerifyRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	keeper, err := OpenSecretFile(path, "changeme")
	if err != nil {
		t.Fatalf("OpenSecretFile returned error: %v", err)
	}
	if err := keeper.Verify("changeme"); err != nil {
		t.Fatalf("expected seeded secret to verify, got %v", err)
	}
	if err := keeper.Verify("wrong"); err == nil {
		t.Fatal("expected mismatch to fail")
	}
	if err := keeper.Rotate("changeme", "new-secret"); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if err := keeper.Verify("changeme"); err == nil {
		t.Fatal("old secret should no longer verify")
	}

	reopened, err := OpenSecretFile(path, "ignored-fallback")
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if err := reopened.Verify("new-secret"); err != nil {
		t.Fatalf("rotated secret should verify after reopen, got %v", err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read secret file: %v", err)
	}
	if strings.Contains(string(payload), "new-secret") || strings.Contains(string(payload), "changeme") {
		t.Fatal("plaintext secret should not appear in the secret file")
	}
}

func TestSecretKeeperRotateRequiresCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	keeper, err := OpenSecretFile(path, "changeme")
	if err != nil {
		t.Fatalf("OpenSecretFile returned error: %v", err)
	}
	if err := keeper.Rotate("wrong", "next"); err == nil {
		t.Fatal("expected rotation with wrong secret to fail")
	}
	if err := keeper.Verify("changeme"); err != nil {
		t.Fatalf("original secret should survive failed rotation, got %v", err)
	}
}
