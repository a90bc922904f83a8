// Package state remembers which sidecars have already been pushed to the
// media server so unchanged files can be skipped on later runs.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vmunix/nfosync/internal/migrations"
)

// ErrNotFound is returned when no applied record exists for a sidecar.
var ErrNotFound = errors.New("not found")

// Applied is the record of a sidecar whose metadata reached the server.
type Applied struct {
	NFOPath   string
	RatingKey string
	Library   string
	Hash      string
	AppliedAt time.Time
}

// Store is the SQLite-backed applied-hash cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path and applies
// migrations. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// One connection: SQLite serializes writers and :memory: is per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure state db: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle so the event log can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the applied record for a sidecar path.
func (s *Store) Get(ctx context.Context, nfoPath string) (*Applied, error) {
	a := &Applied{}
	err := s.db.QueryRowContext(ctx, `
		SELECT nfo_path, rating_key, library, nfo_hash, applied_at
		FROM applied WHERE nfo_path = ?`, nfoPath,
	).Scan(&a.NFOPath, &a.RatingKey, &a.Library, &a.Hash, &a.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get applied %s: %w", nfoPath, err)
	}
	return a, nil
}

// Unchanged reports whether the sidecar with this hash was already applied
// to the same item.
func (s *Store) Unchanged(ctx context.Context, nfoPath, ratingKey, hash string) (bool, error) {
	a, err := s.Get(ctx, nfoPath)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return a.RatingKey == ratingKey && a.Hash == hash, nil
}

// Record upserts the applied record for a sidecar.
func (s *Store) Record(ctx context.Context, a Applied) error {
	if a.AppliedAt.IsZero() {
		a.AppliedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applied (nfo_path, rating_key, library, nfo_hash, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(nfo_path) DO UPDATE SET
			rating_key = excluded.rating_key,
			library = excluded.library,
			nfo_hash = excluded.nfo_hash,
			applied_at = excluded.applied_at`,
		a.NFOPath, a.RatingKey, a.Library, a.Hash, a.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("record applied %s: %w", a.NFOPath, err)
	}
	return nil
}

// Forget removes the applied record for a sidecar.
func (s *Store) Forget(ctx context.Context, nfoPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM applied WHERE nfo_path = ?`, nfoPath); err != nil {
		return fmt.Errorf("forget applied %s: %w", nfoPath, err)
	}
	return nil
}

// Count returns the number of applied records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applied`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count applied: %w", err)
	}
	return n, nil
}
