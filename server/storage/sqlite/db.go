// Package sqlite implements storage.Backend on top of database/sql and SQLite.
//
// Two drivers are supported: the pure-Go modernc.org/sqlite (driver name
// "sqlite", the default) and the cgo-based github.com/mattn/go-sqlite3
// (driver name "sqlite3").
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/cyp0633/caldora-recur/server/storage"
)

const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Config selects the database file and driver.
type Config struct {
	// Path of the database file. Parent directories are created.
	Path string
	// Driver is DriverModernc or DriverMattn. Empty means DriverModernc.
	Driver string
}

// Store implements storage.Backend. Reads and single writes go straight to
// the pool; InTx and cascading deletes run inside a database transaction.
type Store struct {
	*repo
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens (and if needed initializes) the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &Store{repo: &repo{q: db}, db: db}, nil
}

func buildDSN(cfg Config) (string, error) {
	switch cfg.Driver {
	case DriverModernc:
		return "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
	case DriverMattn:
		return cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported driver %q", cfg.Driver)
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside a database transaction.
func (s *Store) InTx(ctx context.Context, fn func(repo storage.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePattern removes the pattern and its children atomically.
func (s *Store) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	return s.InTx(ctx, func(r storage.Repository) error {
		return r.DeletePattern(ctx, id, scope)
	})
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
