package occurrence

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

// Service answers occurrence queries and applies mutations. It keeps no
// mutable state of its own and is safe for concurrent use.
type Service struct {
	backend storage.Transactor
	// bound is set by Bind; every call then runs inside the caller's unit of work.
	bound  storage.Repository
	engine *recurrence.Engine
	logger *slog.Logger
	newID  func() string
}

// Option represents a configuration option for the Service
type Option func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEngine replaces the default uncached recurrence engine.
func WithEngine(engine *recurrence.Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithIDGenerator sets the function producing identities for new rows.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates a service over backend.
func New(backend storage.Transactor, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	s := &Service{
		backend: backend,
		engine:  recurrence.NewEngine(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:   NewUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bind returns a copy of s whose operations all run against repo, typically
// the Repository handed out by a caller's own Transactor.InTx.
func (s *Service) Bind(repo storage.Repository) *Service {
	c := *s
	c.bound = repo
	return &c
}

// inTx runs fn in one unit of work: the bound repository, or a new transaction.
func (s *Service) inTx(ctx context.Context, fn func(repo storage.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.bound != nil {
		return fn(s.bound)
	}
	return s.backend.InTx(ctx, fn)
}

// NewUUID returns a random (version 4) UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// NewULIDGenerator returns a generator of lexically sortable ULIDs, safe
// for concurrent use.
func NewULIDGenerator() func() string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	}
}
