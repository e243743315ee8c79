// Package store provides configuration options shared by the storage backends.
package store

import (
	"log/slog"
	"strings"
)

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string: a postgres:// URL or key=value
	// connection string for PostgreSQL, otherwise a SQLite file path.
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// NewStore builds the storage backend selected by the configured options:
// PostgreSQL when the DSN looks like a connection string, SQLite for file
// paths, and an in-memory store when no DSN is set.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.NewStore: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("store.NewStore: detected PostgreSQL DSN")
		return NewPostgresStore(opts...)
	}
	slog.Debug("store.NewStore: detected SQLite DSN", "path", cfg.DSN)
	return NewSQLiteStore(opts...)
}

// DetectDSNType inspects a DSN and reports the backend it selects:
// "postgres" for PostgreSQL connection strings, "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
