package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/migration"
	"github.com/julianstephens/daylit-sync/migrations"
)

// Store keeps cache entries in a single sqlite file.
type Store struct {
	path string
	db   *sql.DB
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

// Init creates the database file and its parent directory when missing and
// applies the cache schema. It is safe to call on every start.
func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	// One connection serializes writers; sqlite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return fmt.Errorf("failed to run cache migrations: %w", err)
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}

	runner := migration.NewRunner(s.db, subFS, migration.SQLite)
	_, err = runner.Apply(ctx, func(msg string) {
		logger.Debug(msg, "store", "sqlite")
	})
	return err
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (localstore.Entry, error) {
	var payload string
	var version uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, version FROM cache_entries WHERE key = ?", key,
	).Scan(&payload, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return localstore.Entry{}, nil
		}
		return localstore.Entry{}, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return localstore.Entry{
		Rows:    localstore.DecodeRows(key, []byte(payload)),
		Version: version,
	}, nil
}

func (s *Store) Set(ctx context.Context, key string, rows []json.RawMessage) (uint64, error) {
	payload, err := localstore.EncodeRows(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	var version uint64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO cache_entries (key, payload, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			version = cache_entries.version + 1,
			deleted = 0,
			updated_at = excluded.updated_at
		RETURNING version`,
		key, string(payload), now(),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return version, nil
}

func (s *Store) CompareAndSet(ctx context.Context, key string, rows []json.RawMessage, version uint64) (bool, uint64, error) {
	payload, err := localstore.EncodeRows(rows)
	if err != nil {
		return false, 0, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	var query string
	var args []any
	if version == 0 {
		query = `
			INSERT INTO cache_entries (key, payload, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING
			RETURNING version`
		args = []any{key, string(payload), now()}
	} else {
		query = `
			UPDATE cache_entries
			SET payload = ?, version = version + 1, deleted = 0, updated_at = ?
			WHERE key = ? AND version = ?
			RETURNING version`
		args = []any{string(payload), now(), key, version}
	}

	var next uint64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&next)
	if err == nil {
		return true, next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	current, err := s.Get(ctx, key)
	if err != nil {
		return false, 0, err
	}
	return false, current.Version, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE instr(key, ?) = 1 AND deleted = 0 ORDER BY key", prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete empties key and hides it from Keys. The row stays behind with a
// bumped version.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cache_entries
		SET payload = '[]', version = version + 1, deleted = 1, updated_at = ?
		WHERE key = ? AND deleted = 0`,
		now(), key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
