package storage

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig carries pool tuning applied when opening the Postgres
// backend.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	ApplicationName string
	ConnectTimeout  time.Duration
}

func (c PostgresConfig) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if c.MaxConnections > 0 {
		cfg.MaxConns = c.MaxConnections
	}
	if c.MinConnections >= 0 {
		cfg.MinConns = c.MinConnections
	}
	if c.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
	}
	if c.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	return cfg, nil
}
