package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/database/backends"
)

// DB is an open, migrated connection plus the dialect needed to write
// portable queries against it.
type DB struct {
	*sql.DB
	Type BackendType
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database")

	switch cfg.Backend {
	case "", BackendSQLite:
		b, err := backends.OpenSQLite(backends.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			JournalMode: cfg.SQLite.JournalMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := b.Migrator.Migrate(); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("database opened", "backend", BackendSQLite, "path", b.Config.Path)
		return &DB{DB: b.DB, Type: BackendSQLite}, nil

	case BackendPostgreSQL:
		b, err := backends.OpenPostgreSQL(backends.PostgreSQLConfig{
			URL:             cfg.PostgreSQL.URL,
			Host:            cfg.PostgreSQL.Host,
			Port:            cfg.PostgreSQL.Port,
			Database:        cfg.PostgreSQL.Database,
			User:            cfg.PostgreSQL.User,
			Password:        cfg.PostgreSQL.Password,
			SSLMode:         cfg.PostgreSQL.SSLMode,
			MaxOpenConns:    cfg.PostgreSQL.MaxOpenConns,
			MaxIdleConns:    cfg.PostgreSQL.MaxIdleConns,
			ConnMaxLifetime: cfg.PostgreSQL.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := b.Migrator.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("database opened", "backend", BackendPostgreSQL, "host", b.Config.Host)
		return &DB{DB: b.DB, Type: BackendPostgreSQL}, nil

	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Backend)
	}
}

// Rebind rewrites "?" placeholders into the backend's native form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.Type, query)
}

// Rebind rewrites "?" placeholders as $1, $2, ... for PostgreSQL and returns
// the query unchanged for SQLite.
func Rebind(t BackendType, query string) string {
	if t != BackendPostgreSQL {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
