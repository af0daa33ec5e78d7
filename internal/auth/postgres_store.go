package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore persists sessions to a Postgres table, allowing
// multiple API replicas to share authentication state. Tokens are stored
// hashed.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore opens a Postgres-backed session store using the
// provided DSN and ensures the sessions table exists.
func NewPostgresSessionStore(dsn string) (*PostgresSessionStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres session dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres session config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres session pool: %w", err)
	}
	store := &PostgresSessionStore{pool: pool}
	if err := store.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresSessionStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS auth_sessions (
    token_hash TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ
)
`)
	if err != nil {
		return fmt.Errorf("ensure auth_sessions table: %w", err)
	}
	return nil
}

// Close releases the Postgres connection pool resources.
func (s *PostgresSessionStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Save stores or updates the session row keyed by the hashed token.
func (s *PostgresSessionStore) Save(record SessionRecord) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	hashed, err := hashSessionToken(record.Token)
	if err != nil {
		return err
	}
	var expiresAt any
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UTC()
	}
	_, err = s.pool.Exec(context.Background(), `
INSERT INTO auth_sessions (token_hash, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
`, hashed, record.UserID, record.CreatedAt.UTC(), expiresAt)
	return err
}

// Get fetches the session details for the provided plaintext token.
func (s *PostgresSessionStore) Get(token string) (SessionRecord, bool, error) {
	if s.pool == nil {
		return SessionRecord{}, false, fmt.Errorf("postgres session pool not configured")
	}
	hashed, err := hashSessionToken(token)
	if err != nil {
		return SessionRecord{}, false, nil
	}
	row := s.pool.QueryRow(context.Background(), `
SELECT user_id, created_at, expires_at
FROM auth_sessions
WHERE token_hash = $1
`, hashed)
	record := SessionRecord{Token: token}
	var expiresAt *time.Time
	if err := row.Scan(&record.UserID, &record.CreatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, err
	}
	if expiresAt != nil {
		record.ExpiresAt = *expiresAt
	}
	return record, true, nil
}

// Delete removes the session row for the provided plaintext token.
func (s *PostgresSessionStore) Delete(token string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	hashed, err := hashSessionToken(token)
	if err != nil {
		return nil
	}
	_, err = s.pool.Exec(context.Background(), `DELETE FROM auth_sessions WHERE token_hash = $1`, hashed)
	return err
}

// PurgeExpired deletes expired sessions from the table.
func (s *PostgresSessionStore) PurgeExpired(now time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	_, err := s.pool.Exec(context.Background(), `DELETE FROM auth_sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now.UTC())
	return err
}

// Ping verifies the Postgres pool is reachable.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.pool.Ping(ctx)
}
