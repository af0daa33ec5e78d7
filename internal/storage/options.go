package storage

import (
	"strings"
	"time"
)

// Option configures a repository backend. Options that do not apply to the
// selected backend are ignored.
type Option interface {
	applyJSON(*Storage)
	applyPostgres(*PostgresConfig)
	applyMongo(*MongoConfig)
}

type optionAdapter struct {
	json  func(*Storage)
	pg    func(*PostgresConfig)
	mongo func(*MongoConfig)
}

func (o optionAdapter) applyJSON(store *Storage) {
	if o.json != nil && store != nil {
		o.json(store)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func (o optionAdapter) applyMongo(cfg *MongoConfig) {
	if o.mongo != nil && cfg != nil {
		o.mongo(cfg)
	}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

func mongoOnlyOption(mongo func(*MongoConfig)) Option {
	return optionAdapter{mongo: mongo}
}

// WithPostgresPoolLimits bounds the connection pool size.
func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresApplicationName labels pool connections for pg_stat_activity.
func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}

// WithMongoDatabase overrides the database name used by the Mongo backend.
func WithMongoDatabase(name string) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.Database = trimmed
		}
	})
}

// WithMongoTimeout bounds connection establishment and server selection.
func WithMongoTimeout(timeout time.Duration) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if timeout > 0 {
			cfg.ConnectTimeout = timeout
		}
	})
}
