package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisSessionPrefix = "minbar:session:"

// RedisSessionOptions configures the Redis-backed session store.
type RedisSessionOptions struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// RedisSessionStore keeps sessions in Redis, letting multiple API replicas
// share authentication state. Tokens are stored hashed, and expiry is
// delegated to Redis key TTLs.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionStore connects to Redis and verifies the server responds.
func NewRedisSessionStore(opts RedisSessionOptions) (*RedisSessionStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis session addr required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisSessionPrefix
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis session store: %w", err)
	}
	return &RedisSessionStore{client: client, prefix: prefix}, nil
}

// NewRedisSessionStoreWithClient wraps an existing client, primarily for tests.
func NewRedisSessionStoreWithClient(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = defaultRedisSessionPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

// Close releases the underlying Redis client.
func (s *RedisSessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisSessionStore) key(token string) (string, error) {
	hashed, err := hashSessionToken(token)
	if err != nil {
		return "", err
	}
	return s.prefix + hashed, nil
}

type redisSessionPayload struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Save writes the session under the hashed token key, applying a TTL when
// the record expires.
func (s *RedisSessionStore) Save(record SessionRecord) error {
	key, err := s.key(record.Token)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisSessionPayload{
		UserID:    record.UserID,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	var ttl time.Duration
	if !record.ExpiresAt.IsZero() {
		ttl = time.Until(record.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}
	return s.client.Set(context.Background(), key, payload, ttl).Err()
}

// Get fetches the session for the plaintext token.
func (s *RedisSessionStore) Get(token string) (SessionRecord, bool, error) {
	key, err := s.key(token)
	if err != nil {
		return SessionRecord{}, false, nil
	}
	raw, err := s.client.Get(context.Background(), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, err
	}
	var payload redisSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SessionRecord{}, false, fmt.Errorf("decode session: %w", err)
	}
	return SessionRecord{
		Token:     token,
		UserID:    payload.UserID,
		CreatedAt: payload.CreatedAt,
		ExpiresAt: payload.ExpiresAt,
	}, true, nil
}

// Delete removes the session for the plaintext token.
func (s *RedisSessionStore) Delete(token string) error {
	key, err := s.key(token)
	if err != nil {
		return nil
	}
	return s.client.Del(context.Background(), key).Err()
}

// PurgeExpired is a no-op because Redis evicts expired keys itself.
func (s *RedisSessionStore) PurgeExpired(time.Time) error {
	return nil
}

// Ping verifies the Redis server is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx).Err()
}
