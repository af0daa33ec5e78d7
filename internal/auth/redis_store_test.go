package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"minbar/internal/testsupport/redisstub"
)

func newStubRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = stub.Close() })
	client := redis.NewClient(&redis.Options{Addr: stub.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStoreWithClient(client, "")
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store := newStubRedisStore(t)
	record := SessionRecord{Token: "redis-token", UserID: "user-9", CreatedAt: time.Now().UTC()}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, ok, err := store.Get("redis-token")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok || got.UserID != "user-9" {
		t.Fatalf("Get = %+v, %v; want user-9", got, ok)
	}
	if _, ok, _ := store.Get("unknown-token"); ok {
		t.Fatal("unknown token should not resolve")
	}
	if err := store.Delete("redis-token"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok, _ := store.Get("redis-token"); ok {
		t.Fatal("deleted token should not resolve")
	}
}

func TestRedisSessionStorePing(t *testing.T) {
	store := newStubRedisStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
}

func TestSessionManagerWithRedisStore(t *testing.T) {
	store := newStubRedisStore(t)
	manager := NewSessionManager(0, WithStore(store))
	token, _, err := manager.Create("user-10")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	userID, ok, err := manager.Validate(token)
	if err != nil || !ok || userID != "user-10" {
		t.Fatalf("Validate = %q, %v, %v; want user-10, true, nil", userID, ok, err)
	}
	if err := manager.Revoke(token); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, ok, _ := manager.Validate(token); ok {
		t.Fatal("revoked token should be invalid")
	}
}
