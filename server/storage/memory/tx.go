package memory

import (
	"context"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// txRepo operates on the store state directly. Callers hold the store lock.
// Every write stores a fresh copy so readers never observe later mutations
// of the caller's value.
type txRepo struct {
	st  *state
	now func() time.Time
}

func (r *txRepo) CreatePattern(_ context.Context, p *storage.RecurrencePattern) error {
	if _, exists := r.st.patterns[p.ID]; exists {
		return storage.AlreadyExists("pattern %q already exists", p.ID)
	}
	now := r.now()
	p.Created, p.Modified = now, now
	r.st.patterns[p.ID] = copyPattern(p)
	return nil
}

func (r *txRepo) GetPattern(_ context.Context, id string, scope storage.Scope) (*storage.RecurrencePattern, error) {
	p, ok := r.st.patterns[id]
	if !ok || p.Scope != scope {
		return nil, storage.NotFound("pattern", id)
	}
	return copyPattern(p), nil
}

func (r *txRepo) UpdatePattern(_ context.Context, p *storage.RecurrencePattern) error {
	existing, ok := r.st.patterns[p.ID]
	if !ok || existing.Scope != p.Scope {
		return storage.NotFound("pattern", p.ID)
	}
	updated := copyPattern(existing)
	updated.Duration = p.Duration
	updated.Extensions = storage.CloneExtensions(p.Extensions)
	updated.Modified = r.now()
	p.Modified = updated.Modified
	r.st.patterns[p.ID] = updated
	return nil
}

func (r *txRepo) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	p, ok := r.st.patterns[id]
	if !ok || p.Scope != scope {
		return storage.NotFound("pattern", id)
	}
	delete(r.st.patterns, id)
	_ = r.DeleteCancellationsByPattern(ctx, id, scope)
	_ = r.DeleteModificationsByPattern(ctx, id, scope)
	return nil
}

func (r *txRepo) ListPatternsInRange(_ context.Context, q storage.RangeQuery) ([]*storage.RecurrencePattern, error) {
	var out []*storage.RecurrencePattern
	for _, p := range r.st.patterns {
		if p.Scope != q.Scope || !q.MatchesType(p.Type) {
			continue
		}
		if storage.PatternOverlaps(p, q.Start, q.End) {
			out = append(out, copyPattern(p))
		}
	}
	sortPatterns(out)
	return out, nil
}

func (r *txRepo) CreateInstance(_ context.Context, i *storage.StandaloneInstance) error {
	if _, exists := r.st.instances[i.ID]; exists {
		return storage.AlreadyExists("instance %q already exists", i.ID)
	}
	now := r.now()
	i.Created, i.Modified = now, now
	r.st.instances[i.ID] = copyInstance(i)
	return nil
}

func (r *txRepo) GetInstance(_ context.Context, id string, scope storage.Scope) (*storage.StandaloneInstance, error) {
	i, ok := r.st.instances[id]
	if !ok || i.Scope != scope {
		return nil, storage.NotFound("instance", id)
	}
	return copyInstance(i), nil
}

func (r *txRepo) UpdateInstance(_ context.Context, i *storage.StandaloneInstance) error {
	existing, ok := r.st.instances[i.ID]
	if !ok || existing.Scope != i.Scope {
		return storage.NotFound("instance", i.ID)
	}
	i.Created = existing.Created
	i.Modified = r.now()
	r.st.instances[i.ID] = copyInstance(i)
	return nil
}

func (r *txRepo) DeleteInstance(_ context.Context, id string, scope storage.Scope) error {
	i, ok := r.st.instances[id]
	if !ok || i.Scope != scope {
		return storage.NotFound("instance", id)
	}
	delete(r.st.instances, id)
	return nil
}

func (r *txRepo) ListInstancesInRange(_ context.Context, q storage.RangeQuery) ([]*storage.StandaloneInstance, error) {
	var out []*storage.StandaloneInstance
	for _, i := range r.st.instances {
		if i.Scope != q.Scope || !q.MatchesType(i.Type) {
			continue
		}
		if storage.SpanOverlaps(i.StartTime, i.EndTime(), q.Start, q.End) {
			out = append(out, copyInstance(i))
		}
	}
	sortInstances(out)
	return out, nil
}

func (r *txRepo) CreateCancellation(_ context.Context, c *storage.Cancellation) error {
	if _, exists := r.st.cancellations[c.ID]; exists {
		return storage.AlreadyExists("cancellation %q already exists", c.ID)
	}
	p, ok := r.st.patterns[c.RecurrenceID]
	if !ok || p.Scope != c.Scope {
		return storage.NotFound("pattern", c.RecurrenceID)
	}
	c.Created = r.now()
	cp := *c
	cp.Extensions = storage.CloneExtensions(c.Extensions)
	r.st.cancellations[c.ID] = &cp
	return nil
}

func (r *txRepo) GetCancellation(_ context.Context, id string, scope storage.Scope) (*storage.Cancellation, error) {
	c, ok := r.st.cancellations[id]
	if !ok || c.Scope != scope {
		return nil, storage.NotFound("cancellation", id)
	}
	cp := *c
	return &cp, nil
}

func (r *txRepo) ListCancellations(_ context.Context, patternID string, scope storage.Scope) ([]*storage.Cancellation, error) {
	var out []*storage.Cancellation
	for _, c := range r.st.cancellations {
		if c.RecurrenceID == patternID && c.Scope == scope {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *txRepo) DeleteCancellation(_ context.Context, id string, scope storage.Scope) error {
	c, ok := r.st.cancellations[id]
	if !ok || c.Scope != scope {
		return storage.NotFound("cancellation", id)
	}
	delete(r.st.cancellations, id)
	return nil
}

func (r *txRepo) DeleteCancellationsByPattern(_ context.Context, patternID string, scope storage.Scope) error {
	for id, c := range r.st.cancellations {
		if c.RecurrenceID == patternID && c.Scope == scope {
			delete(r.st.cancellations, id)
		}
	}
	return nil
}

func (r *txRepo) CreateModification(_ context.Context, m *storage.Modification) error {
	if _, exists := r.st.modifications[m.ID]; exists {
		return storage.AlreadyExists("modification %q already exists", m.ID)
	}
	p, ok := r.st.patterns[m.RecurrenceID]
	if !ok || p.Scope != m.Scope {
		return storage.NotFound("pattern", m.RecurrenceID)
	}
	for _, existing := range r.st.modifications {
		if existing.RecurrenceID == m.RecurrenceID && existing.OriginalTime.Equal(m.OriginalTime) {
			return storage.AlreadyExists("modification for pattern %q at %s already exists",
				m.RecurrenceID, m.OriginalTime.Format(time.RFC3339))
		}
	}
	now := r.now()
	m.Created, m.Modified = now, now
	r.st.modifications[m.ID] = copyModification(m)
	return nil
}

func (r *txRepo) GetModification(_ context.Context, id string, scope storage.Scope) (*storage.Modification, error) {
	m, ok := r.st.modifications[id]
	if !ok || m.Scope != scope {
		return nil, storage.NotFound("modification", id)
	}
	return copyModification(m), nil
}

func (r *txRepo) ListModifications(_ context.Context, patternID string, scope storage.Scope) ([]*storage.Modification, error) {
	var out []*storage.Modification
	for _, m := range r.st.modifications {
		if m.RecurrenceID == patternID && m.Scope == scope {
			out = append(out, copyModification(m))
		}
	}
	return out, nil
}

func (r *txRepo) ListModificationsInRange(_ context.Context, scope storage.Scope, patternIDs []string, start, end time.Time) ([]*storage.Modification, error) {
	wanted := make(map[string]struct{}, len(patternIDs))
	for _, id := range patternIDs {
		wanted[id] = struct{}{}
	}
	var out []*storage.Modification
	for _, m := range r.st.modifications {
		if _, ok := wanted[m.RecurrenceID]; !ok || m.Scope != scope {
			continue
		}
		if storage.ModificationRelevant(m, start, end) {
			out = append(out, copyModification(m))
		}
	}
	return out, nil
}

// UpdateModification keeps the key and the original snapshot of the stored row.
func (r *txRepo) UpdateModification(_ context.Context, m *storage.Modification) error {
	existing, ok := r.st.modifications[m.ID]
	if !ok || existing.Scope != m.Scope {
		return storage.NotFound("modification", m.ID)
	}
	updated := copyModification(existing)
	updated.StartTime = m.StartTime
	updated.Duration = m.Duration
	updated.Extensions = storage.CloneExtensions(m.Extensions)
	updated.Modified = r.now()
	m.Modified = updated.Modified
	r.st.modifications[m.ID] = updated
	return nil
}

func (r *txRepo) DeleteModification(_ context.Context, id string, scope storage.Scope) error {
	m, ok := r.st.modifications[id]
	if !ok || m.Scope != scope {
		return storage.NotFound("modification", id)
	}
	delete(r.st.modifications, id)
	return nil
}

func (r *txRepo) DeleteModificationsByPattern(_ context.Context, patternID string, scope storage.Scope) error {
	for id, m := range r.st.modifications {
		if m.RecurrenceID == patternID && m.Scope == scope {
			delete(r.st.modifications, id)
		}
	}
	return nil
}

func copyPattern(p *storage.RecurrencePattern) *storage.RecurrencePattern {
	cp := *p
	cp.Extensions = storage.CloneExtensions(p.Extensions)
	return &cp
}

func copyInstance(i *storage.StandaloneInstance) *storage.StandaloneInstance {
	cp := *i
	cp.Extensions = storage.CloneExtensions(i.Extensions)
	return &cp
}

func copyModification(m *storage.Modification) *storage.Modification {
	cp := *m
	cp.Extensions = storage.CloneExtensions(m.Extensions)
	cp.OriginalExtensions = storage.CloneExtensions(m.OriginalExtensions)
	return &cp
}
