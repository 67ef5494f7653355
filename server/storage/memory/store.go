// memory based implementation for testing purposes
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Store implements storage.Backend using in-memory maps.
// Transactions hold the store lock for their whole duration and restore a
// snapshot of the maps when the callback fails.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ storage.Backend = (*Store)(nil)

type state struct {
	patterns      map[string]*storage.RecurrencePattern
	instances     map[string]*storage.StandaloneInstance
	cancellations map[string]*storage.Cancellation
	modifications map[string]*storage.Modification
}

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func newState() *state {
	return &state{
		patterns:      make(map[string]*storage.RecurrencePattern),
		instances:     make(map[string]*storage.StandaloneInstance),
		cancellations: make(map[string]*storage.Cancellation),
		modifications: make(map[string]*storage.Modification),
	}
}

// clone copies the maps; stored values are never mutated in place, so
// sharing the pointers is safe.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.patterns {
		c.patterns[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.cancellations {
		c.cancellations[k] = v
	}
	for k, v := range s.modifications {
		c.modifications[k] = v
	}
	return c
}

// InTx runs fn with exclusive access to the store.
func (s *Store) InTx(ctx context.Context, fn func(repo storage.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&txRepo{st: s.state, now: s.now}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) read(ctx context.Context, fn func(r *txRepo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&txRepo{st: s.state, now: s.now})
}

func (s *Store) write(ctx context.Context, fn func(r *txRepo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txRepo{st: s.state, now: s.now})
}

// Pattern operations

func (s *Store) CreatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	return s.write(ctx, func(r *txRepo) error { return r.CreatePattern(ctx, p) })
}

func (s *Store) GetPattern(ctx context.Context, id string, scope storage.Scope) (p *storage.RecurrencePattern, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		p, err = r.GetPattern(ctx, id, scope)
		return err
	})
	return p, err
}

func (s *Store) UpdatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	return s.write(ctx, func(r *txRepo) error { return r.UpdatePattern(ctx, p) })
}

func (s *Store) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeletePattern(ctx, id, scope) })
}

func (s *Store) ListPatternsInRange(ctx context.Context, q storage.RangeQuery) (out []*storage.RecurrencePattern, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		out, err = r.ListPatternsInRange(ctx, q)
		return err
	})
	return out, err
}

// Standalone instance operations

func (s *Store) CreateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	return s.write(ctx, func(r *txRepo) error { return r.CreateInstance(ctx, i) })
}

func (s *Store) GetInstance(ctx context.Context, id string, scope storage.Scope) (i *storage.StandaloneInstance, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		i, err = r.GetInstance(ctx, id, scope)
		return err
	})
	return i, err
}

func (s *Store) UpdateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	return s.write(ctx, func(r *txRepo) error { return r.UpdateInstance(ctx, i) })
}

func (s *Store) DeleteInstance(ctx context.Context, id string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeleteInstance(ctx, id, scope) })
}

func (s *Store) ListInstancesInRange(ctx context.Context, q storage.RangeQuery) (out []*storage.StandaloneInstance, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		out, err = r.ListInstancesInRange(ctx, q)
		return err
	})
	return out, err
}

// Cancellation operations

func (s *Store) CreateCancellation(ctx context.Context, c *storage.Cancellation) error {
	return s.write(ctx, func(r *txRepo) error { return r.CreateCancellation(ctx, c) })
}

func (s *Store) GetCancellation(ctx context.Context, id string, scope storage.Scope) (c *storage.Cancellation, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		c, err = r.GetCancellation(ctx, id, scope)
		return err
	})
	return c, err
}

func (s *Store) ListCancellations(ctx context.Context, patternID string, scope storage.Scope) (out []*storage.Cancellation, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		out, err = r.ListCancellations(ctx, patternID, scope)
		return err
	})
	return out, err
}

func (s *Store) DeleteCancellation(ctx context.Context, id string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeleteCancellation(ctx, id, scope) })
}

func (s *Store) DeleteCancellationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeleteCancellationsByPattern(ctx, patternID, scope) })
}

// Modification operations

func (s *Store) CreateModification(ctx context.Context, m *storage.Modification) error {
	return s.write(ctx, func(r *txRepo) error { return r.CreateModification(ctx, m) })
}

func (s *Store) GetModification(ctx context.Context, id string, scope storage.Scope) (m *storage.Modification, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		m, err = r.GetModification(ctx, id, scope)
		return err
	})
	return m, err
}

func (s *Store) ListModifications(ctx context.Context, patternID string, scope storage.Scope) (out []*storage.Modification, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		out, err = r.ListModifications(ctx, patternID, scope)
		return err
	})
	return out, err
}

func (s *Store) ListModificationsInRange(ctx context.Context, scope storage.Scope, patternIDs []string, start, end time.Time) (out []*storage.Modification, err error) {
	err = s.read(ctx, func(r *txRepo) error {
		out, err = r.ListModificationsInRange(ctx, scope, patternIDs, start, end)
		return err
	})
	return out, err
}

func (s *Store) UpdateModification(ctx context.Context, m *storage.Modification) error {
	return s.write(ctx, func(r *txRepo) error { return r.UpdateModification(ctx, m) })
}

func (s *Store) DeleteModification(ctx context.Context, id string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeleteModification(ctx, id, scope) })
}

func (s *Store) DeleteModificationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	return s.write(ctx, func(r *txRepo) error { return r.DeleteModificationsByPattern(ctx, patternID, scope) })
}

func sortPatterns(ps []*storage.RecurrencePattern) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].StartTime.Before(ps[j].StartTime) })
}

func sortInstances(is []*storage.StandaloneInstance) {
	sort.Slice(is, func(i, j int) bool { return is[i].StartTime.Before(is[j].StartTime) })
}
