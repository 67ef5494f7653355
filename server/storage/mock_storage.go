package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBackend implements the Backend interface for testing
type MockBackend struct {
	mock.Mock
}

var _ Backend = (*MockBackend)(nil)

// InTx records the call and, unless an error is configured, runs fn against
// the mock itself. A configured error is returned without running fn; an
// error from fn is returned unchanged.
func (m *MockBackend) InTx(ctx context.Context, fn func(repo Repository) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBackend) CreatePattern(ctx context.Context, p *RecurrencePattern) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockBackend) GetPattern(ctx context.Context, id string, scope Scope) (*RecurrencePattern, error) {
	args := m.Called(ctx, id, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecurrencePattern), args.Error(1)
}

func (m *MockBackend) UpdatePattern(ctx context.Context, p *RecurrencePattern) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockBackend) DeletePattern(ctx context.Context, id string, scope Scope) error {
	args := m.Called(ctx, id, scope)
	return args.Error(0)
}

func (m *MockBackend) ListPatternsInRange(ctx context.Context, q RangeQuery) ([]*RecurrencePattern, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RecurrencePattern), args.Error(1)
}

func (m *MockBackend) CreateInstance(ctx context.Context, i *StandaloneInstance) error {
	args := m.Called(ctx, i)
	return args.Error(0)
}

func (m *MockBackend) GetInstance(ctx context.Context, id string, scope Scope) (*StandaloneInstance, error) {
	args := m.Called(ctx, id, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StandaloneInstance), args.Error(1)
}

func (m *MockBackend) UpdateInstance(ctx context.Context, i *StandaloneInstance) error {
	args := m.Called(ctx, i)
	return args.Error(0)
}

func (m *MockBackend) DeleteInstance(ctx context.Context, id string, scope Scope) error {
	args := m.Called(ctx, id, scope)
	return args.Error(0)
}

func (m *MockBackend) ListInstancesInRange(ctx context.Context, q RangeQuery) ([]*StandaloneInstance, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*StandaloneInstance), args.Error(1)
}

func (m *MockBackend) CreateCancellation(ctx context.Context, c *Cancellation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockBackend) GetCancellation(ctx context.Context, id string, scope Scope) (*Cancellation, error) {
	args := m.Called(ctx, id, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Cancellation), args.Error(1)
}

func (m *MockBackend) ListCancellations(ctx context.Context, patternID string, scope Scope) ([]*Cancellation, error) {
	args := m.Called(ctx, patternID, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Cancellation), args.Error(1)
}

func (m *MockBackend) DeleteCancellation(ctx context.Context, id string, scope Scope) error {
	args := m.Called(ctx, id, scope)
	return args.Error(0)
}

func (m *MockBackend) DeleteCancellationsByPattern(ctx context.Context, patternID string, scope Scope) error {
	args := m.Called(ctx, patternID, scope)
	return args.Error(0)
}

func (m *MockBackend) CreateModification(ctx context.Context, mod *Modification) error {
	args := m.Called(ctx, mod)
	return args.Error(0)
}

func (m *MockBackend) GetModification(ctx context.Context, id string, scope Scope) (*Modification, error) {
	args := m.Called(ctx, id, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Modification), args.Error(1)
}

func (m *MockBackend) ListModifications(ctx context.Context, patternID string, scope Scope) ([]*Modification, error) {
	args := m.Called(ctx, patternID, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Modification), args.Error(1)
}

func (m *MockBackend) ListModificationsInRange(ctx context.Context, scope Scope, patternIDs []string, start, end time.Time) ([]*Modification, error) {
	args := m.Called(ctx, scope, patternIDs, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Modification), args.Error(1)
}

func (m *MockBackend) UpdateModification(ctx context.Context, mod *Modification) error {
	args := m.Called(ctx, mod)
	return args.Error(0)
}

func (m *MockBackend) DeleteModification(ctx context.Context, id string, scope Scope) error {
	args := m.Called(ctx, id, scope)
	return args.Error(0)
}

func (m *MockBackend) DeleteModificationsByPattern(ctx context.Context, patternID string, scope Scope) error {
	args := m.Called(ctx, patternID, scope)
	return args.Error(0)
}

// --- Helper methods for creating test data ---

// NewMockPattern creates a daily pattern in UTC running for the given number of days.
func NewMockPattern(id string, scope Scope, start time.Time, days int, duration time.Duration) *RecurrencePattern {
	until := start.AddDate(0, 0, days)
	return &RecurrencePattern{
		ID:                id,
		Scope:             scope,
		Type:              "meeting",
		StartTime:         start,
		Duration:          duration,
		RecurrenceEndTime: until,
		RRule:             "FREQ=DAILY;UNTIL=" + until.UTC().Format("20060102T150405Z"),
		TimeZone:          "UTC",
		Extensions:        map[string]string{},
	}
}
