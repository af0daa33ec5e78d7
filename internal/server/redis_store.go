package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore counts login attempts with a fixed window: INCR the key,
// stamp the TTL on first increment, reject once the count tops the limit.
type redisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newRedisStore(addr, password string, timeout time.Duration) *redisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisStore{client: client, timeout: timeout}
}

func newRedisStoreWithClient(client redis.UniversalClient, timeout time.Duration) *redisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &redisStore{client: client, timeout: timeout}
}

func (s *redisStore) Allow(key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}

	retryAfter, err := s.client.TTL(ctx, key).Result()
	if err != nil || retryAfter <= 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
