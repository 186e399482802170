// Package statestore persists outline view state in SQLite. It keeps the
// last selected node path per document URL so a reload restores the
// selection.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domoutline/dbopen"
	"github.com/hazyhaar/domoutline/outline"
)

// Schema for the selection table.
const Schema = `
CREATE TABLE IF NOT EXISTS outline_selection (
	url        TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store implements outline.SelectionStore.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

var _ outline.SelectionStore = (*Store)(nil)

// New wraps db. The schema must already be applied (see Open).
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, now: time.Now, logger: logger}
}

// Open opens the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}
	return New(db, logger), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LoadSelection returns the saved path for url, or "" when none is saved.
func (s *Store) LoadSelection(ctx context.Context, url string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM outline_selection WHERE url = ?`, url).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("statestore: load selection: %w", err)
	}
	return path, nil
}

// SaveSelection records path as the selection for url.
func (s *Store) SaveSelection(ctx context.Context, url, path string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO outline_selection (url, path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET path = excluded.path, updated_at = excluded.updated_at`,
		url, path, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("statestore: save selection: %w", err)
	}
	s.logger.Debug("statestore: selection saved", "url", url, "path", path)
	return nil
}

// Forget drops the saved selection for url.
func (s *Store) Forget(ctx context.Context, url string) error {
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM outline_selection WHERE url = ?`, url); err != nil {
		return fmt.Errorf("statestore: forget: %w", err)
	}
	return nil
}

// Prune removes selections not updated since before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM outline_selection WHERE updated_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("statestore: prune: %w", err)
	}
	return res.RowsAffected()
}
