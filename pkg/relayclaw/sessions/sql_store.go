package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/database"
)

// SQLStore keeps records in the assistant_sessions table. Each Put is an
// upsert of one row, which is the keyed equivalent of a full rewrite.
type SQLStore struct {
	db     *database.DB
	logger *slog.Logger
}

// NewSQLStore creates a store on an opened, migrated database.
func NewSQLStore(db *database.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger.With("component", "sessions.sql", "backend", db.Type)}
}

// Load verifies the table is reachable. Rows are read lazily by Get.
func (s *SQLStore) Load(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assistant_sessions").Scan(&n); err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	s.logger.Debug("sessions loaded", "count", n)
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key Key) (Record, bool, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind("SELECT handle, version FROM assistant_sessions WHERE session_key = ?"),
		key.String(),
	).Scan(&rec.Handle, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get session %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key Key, rec Record) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO assistant_sessions (session_key, handle, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_key) DO UPDATE SET
			handle = excluded.handle,
			version = excluded.version,
			updated_at = excluded.updated_at`),
		key.String(), rec.Handle, rec.Version, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) ResetAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM assistant_sessions"); err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	s.logger.Info("all sessions reset")
	return nil
}

func (s *SQLStore) All(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session_key, handle, version FROM assistant_sessions")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var (
			k   string
			rec Record
		)
		if err := rows.Scan(&k, &rec.Handle, &rec.Version); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out[k] = rec
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
