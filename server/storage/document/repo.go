package document

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// repo implements storage.Repository inside one Badger transaction.
type repo struct {
	ctx context.Context
	txn *badger.Txn
}

func (r *repo) getJSON(k []byte, v any) (bool, error) {
	item, err := r.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (r *repo) getString(k []byte) (string, bool, error) {
	item, err := r.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	val, err := item.ValueCopy(nil)
	return string(val), true, err
}

func (r *repo) putJSON(k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.txn.Set(k, b)
}

func (r *repo) exists(k []byte) (bool, error) {
	_, err := r.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan calls fn for every value under p. It stops early on context cancellation.
func (r *repo) scan(p []byte, fn func(k, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	it := r.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		if err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		}); err != nil {
			return err
		}
	}
	return nil
}

func patternKey(s storage.Scope, id string) []byte {
	return key("p", s.Organization, s.ResourcePath, id)
}

func instanceKey(s storage.Scope, id string) []byte {
	return key("i", s.Organization, s.ResourcePath, id)
}

func cancellationKey(s storage.Scope, patternID, id string) []byte {
	return key("c", s.Organization, s.ResourcePath, patternID, id)
}

func cancellationIndexKey(s storage.Scope, id string) []byte {
	return key("ci", s.Organization, s.ResourcePath, id)
}

func modificationKey(s storage.Scope, patternID, id string) []byte {
	return key("m", s.Organization, s.ResourcePath, patternID, id)
}

func modificationIndexKey(s storage.Scope, id string) []byte {
	return key("mi", s.Organization, s.ResourcePath, id)
}

func modificationUniqueKey(s storage.Scope, patternID string, original time.Time) []byte {
	return key("mk", s.Organization, s.ResourcePath, patternID, nsKey(original.UTC().UnixNano()))
}

// Pattern operations

func (r *repo) CreatePattern(_ context.Context, p *storage.RecurrencePattern) error {
	k := patternKey(p.Scope, p.ID)
	if ok, err := r.exists(k); err != nil {
		return err
	} else if ok {
		return storage.AlreadyExists("pattern %q already exists", p.ID)
	}
	now := time.Now().UTC()
	p.Created, p.Modified = now, now
	return r.putJSON(k, toPatternDoc(p))
}

func (r *repo) GetPattern(_ context.Context, id string, scope storage.Scope) (*storage.RecurrencePattern, error) {
	var d patternDoc
	ok, err := r.getJSON(patternKey(scope, id), &d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NotFound("pattern", id)
	}
	return d.model(), nil
}

func (r *repo) UpdatePattern(_ context.Context, p *storage.RecurrencePattern) error {
	k := patternKey(p.Scope, p.ID)
	var d patternDoc
	ok, err := r.getJSON(k, &d)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NotFound("pattern", p.ID)
	}
	d.Duration = p.Duration
	d.Extensions = storage.CloneExtensions(p.Extensions)
	d.Modified = time.Now().UTC()
	p.Modified = d.Modified
	return r.putJSON(k, d)
}

func (r *repo) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	k := patternKey(scope, id)
	if ok, err := r.exists(k); err != nil {
		return err
	} else if !ok {
		return storage.NotFound("pattern", id)
	}
	if err := r.DeleteCancellationsByPattern(ctx, id, scope); err != nil {
		return err
	}
	if err := r.DeleteModificationsByPattern(ctx, id, scope); err != nil {
		return err
	}
	return r.txn.Delete(k)
}

func (r *repo) ListPatternsInRange(_ context.Context, q storage.RangeQuery) ([]*storage.RecurrencePattern, error) {
	var out []*storage.RecurrencePattern
	err := r.scan(prefix("p", q.Organization, q.ResourcePath), func(_, val []byte) error {
		var d patternDoc
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		p := d.model()
		if q.MatchesType(p.Type) && storage.PatternOverlaps(p, q.Start, q.End) {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

// Standalone instance operations

func (r *repo) CreateInstance(_ context.Context, i *storage.StandaloneInstance) error {
	k := instanceKey(i.Scope, i.ID)
	if ok, err := r.exists(k); err != nil {
		return err
	} else if ok {
		return storage.AlreadyExists("instance %q already exists", i.ID)
	}
	now := time.Now().UTC()
	i.Created, i.Modified = now, now
	return r.putJSON(k, toInstanceDoc(i))
}

func (r *repo) GetInstance(_ context.Context, id string, scope storage.Scope) (*storage.StandaloneInstance, error) {
	var d instanceDoc
	ok, err := r.getJSON(instanceKey(scope, id), &d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NotFound("instance", id)
	}
	return d.model(), nil
}

func (r *repo) UpdateInstance(_ context.Context, i *storage.StandaloneInstance) error {
	k := instanceKey(i.Scope, i.ID)
	var d instanceDoc
	ok, err := r.getJSON(k, &d)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NotFound("instance", i.ID)
	}
	i.Created = d.Created
	i.Modified = time.Now().UTC()
	return r.putJSON(k, toInstanceDoc(i))
}

func (r *repo) DeleteInstance(_ context.Context, id string, scope storage.Scope) error {
	k := instanceKey(scope, id)
	if ok, err := r.exists(k); err != nil {
		return err
	} else if !ok {
		return storage.NotFound("instance", id)
	}
	return r.txn.Delete(k)
}

func (r *repo) ListInstancesInRange(_ context.Context, q storage.RangeQuery) ([]*storage.StandaloneInstance, error) {
	var out []*storage.StandaloneInstance
	err := r.scan(prefix("i", q.Organization, q.ResourcePath), func(_, val []byte) error {
		var d instanceDoc
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		i := d.model()
		if q.MatchesType(i.Type) && storage.SpanOverlaps(i.StartTime, i.EndTime(), q.Start, q.End) {
			out = append(out, i)
		}
		return nil
	})
	sort.Slice(out, func(a, b int) bool { return out[a].StartTime.Before(out[b].StartTime) })
	return out, err
}

func (r *repo) requirePattern(id string, scope storage.Scope) error {
	ok, err := r.exists(patternKey(scope, id))
	if err != nil {
		return err
	}
	if !ok {
		return storage.NotFound("pattern", id)
	}
	return nil
}

// Cancellation operations

func (r *repo) CreateCancellation(_ context.Context, c *storage.Cancellation) error {
	if err := r.requirePattern(c.RecurrenceID, c.Scope); err != nil {
		return err
	}
	idx := cancellationIndexKey(c.Scope, c.ID)
	if ok, err := r.exists(idx); err != nil {
		return err
	} else if ok {
		return storage.AlreadyExists("cancellation %q already exists", c.ID)
	}
	c.Created = time.Now().UTC()
	if err := r.txn.Set(idx, []byte(c.RecurrenceID)); err != nil {
		return err
	}
	return r.putJSON(cancellationKey(c.Scope, c.RecurrenceID, c.ID), toCancellationDoc(c))
}

func (r *repo) GetCancellation(_ context.Context, id string, scope storage.Scope) (*storage.Cancellation, error) {
	patternID, ok, err := r.getString(cancellationIndexKey(scope, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NotFound("cancellation", id)
	}
	var d cancellationDoc
	if ok, err = r.getJSON(cancellationKey(scope, patternID, id), &d); err != nil {
		return nil, err
	} else if !ok {
		return nil, storage.NotFound("cancellation", id)
	}
	return d.model(), nil
}

func (r *repo) ListCancellations(_ context.Context, patternID string, scope storage.Scope) ([]*storage.Cancellation, error) {
	var out []*storage.Cancellation
	err := r.scan(prefix("c", scope.Organization, scope.ResourcePath, patternID), func(_, val []byte) error {
		var d cancellationDoc
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		out = append(out, d.model())
		return nil
	})
	return out, err
}

func (r *repo) DeleteCancellation(_ context.Context, id string, scope storage.Scope) error {
	idx := cancellationIndexKey(scope, id)
	patternID, ok, err := r.getString(idx)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NotFound("cancellation", id)
	}
	if err := r.txn.Delete(idx); err != nil {
		return err
	}
	return r.txn.Delete(cancellationKey(scope, patternID, id))
}

func (r *repo) DeleteCancellationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	list, err := r.ListCancellations(ctx, patternID, scope)
	if err != nil {
		return err
	}
	for _, c := range list {
		if err := r.DeleteCancellation(ctx, c.ID, scope); err != nil {
			return err
		}
	}
	return nil
}

// Modification operations

func (r *repo) CreateModification(_ context.Context, m *storage.Modification) error {
	if err := r.requirePattern(m.RecurrenceID, m.Scope); err != nil {
		return err
	}
	idx := modificationIndexKey(m.Scope, m.ID)
	if ok, err := r.exists(idx); err != nil {
		return err
	} else if ok {
		return storage.AlreadyExists("modification %q already exists", m.ID)
	}
	uniq := modificationUniqueKey(m.Scope, m.RecurrenceID, m.OriginalTime)
	if ok, err := r.exists(uniq); err != nil {
		return err
	} else if ok {
		return storage.AlreadyExists("modification for pattern %q at %s already exists",
			m.RecurrenceID, m.OriginalTime.Format(time.RFC3339))
	}

	now := time.Now().UTC()
	m.Created, m.Modified = now, now
	if err := r.txn.Set(idx, []byte(m.RecurrenceID)); err != nil {
		return err
	}
	if err := r.txn.Set(uniq, []byte(m.ID)); err != nil {
		return err
	}
	return r.putJSON(modificationKey(m.Scope, m.RecurrenceID, m.ID), toModificationDoc(m))
}

func (r *repo) loadModification(id string, scope storage.Scope) (*modificationDoc, error) {
	patternID, ok, err := r.getString(modificationIndexKey(scope, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.NotFound("modification", id)
	}
	var d modificationDoc
	if ok, err = r.getJSON(modificationKey(scope, patternID, id), &d); err != nil {
		return nil, err
	} else if !ok {
		return nil, storage.NotFound("modification", id)
	}
	return &d, nil
}

func (r *repo) GetModification(_ context.Context, id string, scope storage.Scope) (*storage.Modification, error) {
	d, err := r.loadModification(id, scope)
	if err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (r *repo) ListModifications(_ context.Context, patternID string, scope storage.Scope) ([]*storage.Modification, error) {
	var out []*storage.Modification
	err := r.scan(prefix("m", scope.Organization, scope.ResourcePath, patternID), func(_, val []byte) error {
		var d modificationDoc
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		out = append(out, d.model())
		return nil
	})
	return out, err
}

func (r *repo) ListModificationsInRange(ctx context.Context, scope storage.Scope, patternIDs []string, start, end time.Time) ([]*storage.Modification, error) {
	var out []*storage.Modification
	for _, id := range patternIDs {
		list, err := r.ListModifications(ctx, id, scope)
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			if storage.ModificationRelevant(m, start, end) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// UpdateModification keeps the key and the original snapshot of the stored document.
func (r *repo) UpdateModification(_ context.Context, m *storage.Modification) error {
	d, err := r.loadModification(m.ID, m.Scope)
	if err != nil {
		return err
	}
	d.StartTime = m.StartTime.UTC()
	d.Duration = m.Duration
	d.Extensions = storage.CloneExtensions(m.Extensions)
	d.Modified = time.Now().UTC()
	m.Modified = d.Modified
	return r.putJSON(modificationKey(m.Scope, d.RecurrenceID, d.ID), d)
}

func (r *repo) DeleteModification(_ context.Context, id string, scope storage.Scope) error {
	d, err := r.loadModification(id, scope)
	if err != nil {
		return err
	}
	for _, k := range [][]byte{
		modificationIndexKey(scope, id),
		modificationUniqueKey(scope, d.RecurrenceID, d.OriginalTime),
		modificationKey(scope, d.RecurrenceID, id),
	} {
		if err := r.txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteModificationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	list, err := r.ListModifications(ctx, patternID, scope)
	if err != nil {
		return err
	}
	for _, m := range list {
		if err := r.DeleteModification(ctx, m.ID, scope); err != nil {
			return err
		}
	}
	return nil
}
