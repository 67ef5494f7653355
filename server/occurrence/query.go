package occurrence

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// snapshot is everything one query reads from storage.
type snapshot struct {
	patterns      []*storage.RecurrencePattern
	instances     []*storage.StandaloneInstance
	modifications map[string][]*storage.Modification
	cancellations map[string][]*storage.Cancellation
}

// OccurrencesInRange returns the occurrences of q.Scope for [q.Start, q.End),
// ascending by start. Virtualized occurrences start inside the window;
// standalone instances are included when their span overlaps it, so one may
// start before q.Start.
func (s *Service) OccurrencesInRange(ctx context.Context, q Query) ([]Entry, error) {
	var out []Entry
	for e, err := range s.Occurrences(ctx, q) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Occurrences streams the result of OccurrencesInRange. Storage is read in
// full before the first entry is yielded; stopping early only saves merge work.
func (s *Service) Occurrences(ctx context.Context, q Query) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if err := validateQuery(q); err != nil {
			yield(nil, err)
			return
		}
		if !q.Start.Before(q.End) {
			return
		}

		var snap *snapshot
		err := s.inTx(ctx, func(repo storage.Repository) (err error) {
			snap, err = s.load(ctx, repo, q)
			return err
		})
		if err != nil {
			yield(nil, err)
			return
		}

		entries, err := s.merge(ctx, snap, q)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// HasOccurrenceInRange reports whether OccurrencesInRange would return anything.
func (s *Service) HasOccurrenceInRange(ctx context.Context, q Query) (bool, error) {
	for _, err := range s.Occurrences(ctx, q) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *Service) load(ctx context.Context, repo storage.Repository, q Query) (*snapshot, error) {
	rq := storage.RangeQuery{Scope: q.Scope, Start: q.Start, End: q.End, Types: q.Types}
	patterns, err := repo.ListPatternsInRange(ctx, rq)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	instances, err := repo.ListInstancesInRange(ctx, rq)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	snap := &snapshot{
		patterns:      patterns,
		instances:     instances,
		modifications: make(map[string][]*storage.Modification),
		cancellations: make(map[string][]*storage.Cancellation),
	}
	if len(patterns) == 0 {
		return snap, nil
	}

	ids := make([]string, len(patterns))
	for i, p := range patterns {
		ids[i] = p.ID
	}
	mods, err := repo.ListModificationsInRange(ctx, q.Scope, ids, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("list modifications: %w", err)
	}
	for _, m := range mods {
		snap.modifications[m.RecurrenceID] = append(snap.modifications[m.RecurrenceID], m)
	}
	for _, p := range patterns {
		cancels, err := repo.ListCancellations(ctx, p.ID, q.Scope)
		if err != nil {
			return nil, fmt.Errorf("list cancellations of %s: %w", p.ID, err)
		}
		snap.cancellations[p.ID] = cancels
	}
	return snap, nil
}

func (s *Service) merge(ctx context.Context, snap *snapshot, q Query) ([]Entry, error) {
	var out []Entry
	for _, p := range snap.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := s.virtualize(p, snap.modifications[p.ID], snap.cancellations[p.ID], q.Start, q.End)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	for _, i := range snap.instances {
		out = append(out, &InstanceEntry{i})
	}

	sort.SliceStable(out, func(a, b int) bool {
		sa, sb := out[a].Start(), out[b].Start()
		if !sa.Equal(sb) {
			return sa.Before(sb)
		}
		return sortKey(out[a]) < sortKey(out[b])
	})
	return out, nil
}

func sortKey(e Entry) string {
	switch v := e.(type) {
	case *VirtualEntry:
		return v.RecurrenceID + "\x00" + v.OriginalTime.Format(time.RFC3339)
	case *InstanceEntry:
		return v.ID
	case *PatternEntry:
		return v.ID
	}
	return ""
}

// virtualize expands one pattern over [start, end) and applies its
// cancellations and modifications.
func (s *Service) virtualize(p *storage.RecurrencePattern, mods []*storage.Modification, cancels []*storage.Cancellation, start, end time.Time) ([]Entry, error) {
	candidates, err := s.engine.Expand(p, start, end)
	if err != nil {
		return nil, fmt.Errorf("expand pattern %s: %w", p.ID, err)
	}

	cancelled := make(map[int64]bool, len(cancels))
	for _, c := range cancels {
		cancelled[c.OriginalTime.UnixNano()] = true
	}
	byKey := make(map[int64]*storage.Modification, len(mods))
	for _, m := range mods {
		k := m.OriginalTime.UnixNano()
		if prev, ok := byKey[k]; ok {
			s.logger.Warn("duplicate modification key, keeping first",
				"pattern", p.ID, "original_time", m.OriginalTime, "kept", prev.ID, "ignored", m.ID)
			continue
		}
		byKey[k] = m

		// A modification moved into the window from an original time outside it.
		if m.OriginalTime.Before(start) || !m.OriginalTime.Before(end) {
			ok, err := s.engine.GeneratesAt(p, m.OriginalTime)
			if err != nil {
				return nil, fmt.Errorf("expand pattern %s: %w", p.ID, err)
			}
			if ok {
				candidates = append(candidates, m.OriginalTime)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	var out []Entry
	seen := make(map[int64]bool, len(candidates))
	for _, at := range candidates {
		k := at.UnixNano()
		if seen[k] {
			continue
		}
		seen[k] = true

		m, modified := byKey[k]
		if cancelled[k] {
			if modified {
				s.logger.Warn("cancellation and modification share a key, cancellation wins",
					"pattern", p.ID, "original_time", at, "modification", m.ID)
			}
			continue
		}

		var e *VirtualEntry
		if modified {
			e = modifiedEntry(p, m)
		} else {
			e = cleanEntry(p, at)
		}
		if e.StartTime.Before(start) || !e.StartTime.Before(end) || e.StartTime.After(p.RecurrenceEndTime) {
			continue
		}
		out = append(out, e)
	}
	s.logger.Debug("virtualized pattern", "pattern", p.ID, "candidates", len(candidates), "emitted", len(out))
	return out, nil
}
