package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"minbar/internal/testsupport/redisstub"
)

func TestLoginRateLimitLocal(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})

	body := `{"username":"nobody","password":"wrong"}`
	var lastStatus int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.5:4000"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		lastStatus = rec.Code
	}
	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("third login status = %d", lastStatus)
	}

	// A different address is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.6:4000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusTooManyRequests {
		t.Fatalf("fresh address should not be limited, status = %d", rec.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
}

func TestRedisStoreCountsLogins(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	client := redis.NewClient(&redis.Options{Addr: stub.Addr()})
	defer client.Close()
	store := newRedisStoreWithClient(client, time.Second)

	for i := 0; i < 2; i++ {
		allowed, _, err := store.Allow("minbar:login:203.0.113.9", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should pass", i)
		}
	}

	allowed, retryAfter, err := store.Allow("minbar:login:203.0.113.9", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Fatal("third attempt should be rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("retry-after = %v", retryAfter)
	}

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	bucket := newTokenBucket(1000, 1)
	if !bucket.Allow() {
		t.Fatal("first token should be available")
	}
	if bucket.Allow() {
		t.Fatal("burst of one should be spent")
	}
	time.Sleep(5 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("bucket should refill at the configured rate")
	}
}
