package storage

import (
	"context"
	"io"
	"time"
)

// PatternStore persists recurrence patterns. Implementations must return an
// *Error of type ErrNotFound for missing rows.
type PatternStore interface {
	CreatePattern(ctx context.Context, p *RecurrencePattern) error
	GetPattern(ctx context.Context, id string, scope Scope) (*RecurrencePattern, error)
	// UpdatePattern persists only the mutable fields (Duration, Extensions).
	UpdatePattern(ctx context.Context, p *RecurrencePattern) error
	// DeletePattern removes the pattern together with its cancellations and modifications.
	DeletePattern(ctx context.Context, id string, scope Scope) error
	// ListPatternsInRange returns patterns whose [StartTime, RecurrenceEndTime] overlaps the query window.
	ListPatternsInRange(ctx context.Context, q RangeQuery) ([]*RecurrencePattern, error)
}

// InstanceStore persists standalone instances.
type InstanceStore interface {
	CreateInstance(ctx context.Context, i *StandaloneInstance) error
	GetInstance(ctx context.Context, id string, scope Scope) (*StandaloneInstance, error)
	UpdateInstance(ctx context.Context, i *StandaloneInstance) error
	DeleteInstance(ctx context.Context, id string, scope Scope) error
	// ListInstancesInRange returns instances whose [StartTime, EndTime) overlaps the query window.
	ListInstancesInRange(ctx context.Context, q RangeQuery) ([]*StandaloneInstance, error)
}

// CancellationStore persists cancellations (exceptions).
type CancellationStore interface {
	CreateCancellation(ctx context.Context, c *Cancellation) error
	GetCancellation(ctx context.Context, id string, scope Scope) (*Cancellation, error)
	ListCancellations(ctx context.Context, patternID string, scope Scope) ([]*Cancellation, error)
	DeleteCancellation(ctx context.Context, id string, scope Scope) error
	DeleteCancellationsByPattern(ctx context.Context, patternID string, scope Scope) error
}

// ModificationStore persists modifications (overrides). CreateModification
// must fail with ErrAlreadyExists when a modification already exists for the
// same (RecurrenceID, OriginalTime).
type ModificationStore interface {
	CreateModification(ctx context.Context, m *Modification) error
	GetModification(ctx context.Context, id string, scope Scope) (*Modification, error)
	ListModifications(ctx context.Context, patternID string, scope Scope) ([]*Modification, error)
	// ListModificationsInRange returns modifications of the given patterns that are
	// relevant to [start, end), see ModificationRelevant.
	ListModificationsInRange(ctx context.Context, scope Scope, patternIDs []string, start, end time.Time) ([]*Modification, error)
	UpdateModification(ctx context.Context, m *Modification) error
	DeleteModification(ctx context.Context, id string, scope Scope) error
	DeleteModificationsByPattern(ctx context.Context, patternID string, scope Scope) error
}

// Repository groups every store. A Repository handed out by Transactor.InTx
// is bound to a single unit of work.
type Repository interface {
	PatternStore
	InstanceStore
	CancellationStore
	ModificationStore
}

// Transactor runs fn inside one unit of work. If fn returns an error every
// write made through the supplied Repository is rolled back.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo Repository) error) error
}

// Backend connects a persistence engine (in-memory maps, SQLite, Badger, ...)
// with the occurrence service. Please use the error types provided.
type Backend interface {
	Repository
	Transactor
	io.Closer
}
