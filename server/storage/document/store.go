// Package document implements storage.Backend on BadgerDB, storing every
// entity as a JSON document.
//
// Key layout (parts joined by NUL):
//
//	p  org rp patternID             pattern document
//	i  org rp instanceID            instance document
//	c  org rp patternID cancelID    cancellation document
//	ci org rp cancelID              -> patternID
//	m  org rp patternID modID       modification document
//	mi org rp modID                 -> patternID
//	mk org rp patternID originalNS  -> modID (unique override key)
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Config describes where the Badger files live.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives Badger's own log lines. Nil silences them.
	Logger *slog.Logger
}

// Store implements storage.Backend.
type Store struct {
	db *badger.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens the Badger database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("document: data directory is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{l: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("document: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside one read-write Badger transaction.
func (s *Store) InTx(ctx context.Context, fn func(repo storage.Repository) error) error {
	return s.update(ctx, func(r *repo) error { return fn(r) })
}

func (s *Store) view(ctx context.Context, fn func(r *repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&repo{ctx: ctx, txn: txn})
	})
}

func (s *Store) update(ctx context.Context, fn func(r *repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&repo{ctx: ctx, txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return &storage.Error{Type: storage.ErrConflict, Message: "concurrent transaction conflict", Err: err}
	}
	return err
}

const sep = "\x00"

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

func prefix(parts ...string) []byte {
	return []byte(strings.Join(parts, sep) + sep)
}

// nsKey renders an instant so that byte order matches time order.
func nsKey(ns int64) string {
	return fmt.Sprintf("%020d", ns)
}

func parseNSKey(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// badgerLogger forwards Badger logging to slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.l.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
