// Package sqlite provides a SQLite-backed persistence port. Cell payloads
// live in a single table keyed by the cell's storage key.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thedude61636/states-rebuilder/pkg/store"
)

const schema = `CREATE TABLE IF NOT EXISTS cell_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL
);`

func init() {
	store.Register("sqlite", func(path string) (store.Store, error) {
		return Open(path)
	})
}

// Store persists cell state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, store.WrapPersist("open", "", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, store.WrapPersist("open", "", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Init creates the cell_state table when missing.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("init", "", err)
	}
	if s == nil || s.sqlDB == nil {
		return store.WrapPersist("init", "", fmt.Errorf("storage is not configured"))
	}
	_, err := s.sqlDB.ExecContext(ctx, schema)
	return store.WrapPersist("init", "", err)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, store.WrapPersist("read", key, err)
	}
	if s == nil || s.sqlDB == nil {
		return "", false, store.WrapPersist("read", key, fmt.Errorf("storage is not configured"))
	}
	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM cell_state WHERE key = ?`, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.WrapPersist("read", key, err)
	}
	return raw, true, nil
}

func (s *Store) Write(ctx context.Context, key, raw string) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("write", key, err)
	}
	if s == nil || s.sqlDB == nil {
		return store.WrapPersist("write", key, fmt.Errorf("storage is not configured"))
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cell_state (key, value, updated_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
		key, raw, time.Now().UTC().UnixMilli(),
	)
	return store.WrapPersist("write", key, err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("delete", key, err)
	}
	if s == nil || s.sqlDB == nil {
		return store.WrapPersist("delete", key, fmt.Errorf("storage is not configured"))
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cell_state WHERE key = ?`, key)
	return store.WrapPersist("delete", key, err)
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("delete_all", "", err)
	}
	if s == nil || s.sqlDB == nil {
		return store.WrapPersist("delete_all", "", fmt.Errorf("storage is not configured"))
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cell_state`)
	return store.WrapPersist("delete_all", "", err)
}
