package document

import (
	"context"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Every Store method runs in its own Badger transaction; use InTx to group them.

func (s *Store) CreatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	return s.update(ctx, func(r *repo) error { return r.CreatePattern(ctx, p) })
}

func (s *Store) GetPattern(ctx context.Context, id string, scope storage.Scope) (p *storage.RecurrencePattern, err error) {
	err = s.view(ctx, func(r *repo) error {
		p, err = r.GetPattern(ctx, id, scope)
		return err
	})
	return p, err
}

func (s *Store) UpdatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	return s.update(ctx, func(r *repo) error { return r.UpdatePattern(ctx, p) })
}

func (s *Store) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeletePattern(ctx, id, scope) })
}

func (s *Store) ListPatternsInRange(ctx context.Context, q storage.RangeQuery) (out []*storage.RecurrencePattern, err error) {
	err = s.view(ctx, func(r *repo) error {
		out, err = r.ListPatternsInRange(ctx, q)
		return err
	})
	return out, err
}

func (s *Store) CreateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	return s.update(ctx, func(r *repo) error { return r.CreateInstance(ctx, i) })
}

func (s *Store) GetInstance(ctx context.Context, id string, scope storage.Scope) (i *storage.StandaloneInstance, err error) {
	err = s.view(ctx, func(r *repo) error {
		i, err = r.GetInstance(ctx, id, scope)
		return err
	})
	return i, err
}

func (s *Store) UpdateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	return s.update(ctx, func(r *repo) error { return r.UpdateInstance(ctx, i) })
}

func (s *Store) DeleteInstance(ctx context.Context, id string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeleteInstance(ctx, id, scope) })
}

func (s *Store) ListInstancesInRange(ctx context.Context, q storage.RangeQuery) (out []*storage.StandaloneInstance, err error) {
	err = s.view(ctx, func(r *repo) error {
		out, err = r.ListInstancesInRange(ctx, q)
		return err
	})
	return out, err
}

func (s *Store) CreateCancellation(ctx context.Context, c *storage.Cancellation) error {
	return s.update(ctx, func(r *repo) error { return r.CreateCancellation(ctx, c) })
}

func (s *Store) GetCancellation(ctx context.Context, id string, scope storage.Scope) (c *storage.Cancellation, err error) {
	err = s.view(ctx, func(r *repo) error {
		c, err = r.GetCancellation(ctx, id, scope)
		return err
	})
	return c, err
}

func (s *Store) ListCancellations(ctx context.Context, patternID string, scope storage.Scope) (out []*storage.Cancellation, err error) {
	err = s.view(ctx, func(r *repo) error {
		out, err = r.ListCancellations(ctx, patternID, scope)
		return err
	})
	return out, err
}

func (s *Store) DeleteCancellation(ctx context.Context, id string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeleteCancellation(ctx, id, scope) })
}

func (s *Store) DeleteCancellationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeleteCancellationsByPattern(ctx, patternID, scope) })
}

func (s *Store) CreateModification(ctx context.Context, m *storage.Modification) error {
	return s.update(ctx, func(r *repo) error { return r.CreateModification(ctx, m) })
}

func (s *Store) GetModification(ctx context.Context, id string, scope storage.Scope) (m *storage.Modification, err error) {
	err = s.view(ctx, func(r *repo) error {
		m, err = r.GetModification(ctx, id, scope)
		return err
	})
	return m, err
}

func (s *Store) ListModifications(ctx context.Context, patternID string, scope storage.Scope) (out []*storage.Modification, err error) {
	err = s.view(ctx, func(r *repo) error {
		out, err = r.ListModifications(ctx, patternID, scope)
		return err
	})
	return out, err
}

func (s *Store) ListModificationsInRange(ctx context.Context, scope storage.Scope, patternIDs []string, start, end time.Time) (out []*storage.Modification, err error) {
	err = s.view(ctx, func(r *repo) error {
		out, err = r.ListModificationsInRange(ctx, scope, patternIDs, start, end)
		return err
	})
	return out, err
}

func (s *Store) UpdateModification(ctx context.Context, m *storage.Modification) error {
	return s.update(ctx, func(r *repo) error { return r.UpdateModification(ctx, m) })
}

func (s *Store) DeleteModification(ctx context.Context, id string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeleteModification(ctx, id, scope) })
}

func (s *Store) DeleteModificationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	return s.update(ctx, func(r *repo) error { return r.DeleteModificationsByPattern(ctx, patternID, scope) })
}
