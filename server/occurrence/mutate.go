package occurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// CreatePattern validates req, resolves its month-day strategy and persists it.
func (s *Service) CreatePattern(ctx context.Context, req PatternRequest) (*PatternEntry, error) {
	p, err := buildPattern(req)
	if err != nil {
		return nil, err
	}
	p.ID = s.newID()
	if err := s.inTx(ctx, func(repo storage.Repository) error {
		return repo.CreatePattern(ctx, p)
	}); err != nil {
		return nil, fmt.Errorf("create pattern: %w", err)
	}
	s.logger.Info("pattern created", "id", p.ID, "type", p.Type, "rrule", p.RRule,
		"month_day_strategy", p.MonthDayStrategy.OrEmpty())
	return &PatternEntry{p}, nil
}

// CreateInstance validates req and persists a standalone instance.
func (s *Service) CreateInstance(ctx context.Context, req InstanceRequest) (*InstanceEntry, error) {
	i := &storage.StandaloneInstance{
		Scope:      req.Scope,
		Type:       req.Type,
		StartTime:  req.StartTime,
		Duration:   req.Duration,
		TimeZone:   req.TimeZone,
		Extensions: storage.CloneExtensions(req.Extensions),
	}
	if err := validateInstance(i); err != nil {
		return nil, err
	}
	i.ID = s.newID()
	if err := s.inTx(ctx, func(repo storage.Repository) error {
		return repo.CreateInstance(ctx, i)
	}); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	s.logger.Info("instance created", "id", i.ID, "type", i.Type)
	return &InstanceEntry{i}, nil
}

// Update persists the mutable fields of e. Updating a clean virtualized
// occurrence creates a modification; updating a modified one edits it.
func (s *Service) Update(ctx context.Context, e Entry) (Entry, error) {
	switch v := e.(type) {
	case *PatternEntry:
		if v == nil || v.RecurrencePattern == nil || v.ID == "" {
			return nil, indeterminate("pattern entry without id")
		}
		return s.updatePattern(ctx, v)
	case *InstanceEntry:
		if v == nil || v.StandaloneInstance == nil || v.ID == "" {
			return nil, indeterminate("instance entry without id")
		}
		return s.updateInstance(ctx, v)
	case *VirtualEntry:
		if v == nil || v.RecurrenceID == "" {
			return nil, indeterminate("virtualized entry without recurrence id")
		}
		if err := validateDuration("duration", v.Duration); err != nil {
			return nil, err
		}
		if err := validateUTC("startTime", v.StartTime); err != nil {
			return nil, err
		}
		if id, ok := v.ModificationID.Get(); ok {
			return s.updateModification(ctx, v, id)
		}
		return s.createModification(ctx, v)
	}
	return nil, indeterminate("unsupported entry %T", e)
}

func (s *Service) updatePattern(ctx context.Context, e *PatternEntry) (Entry, error) {
	if err := validateDuration("duration", e.Duration); err != nil {
		return nil, err
	}
	var stored *storage.RecurrencePattern
	err := s.inTx(ctx, func(repo storage.Repository) error {
		var err error
		stored, err = repo.GetPattern(ctx, e.ID, e.Scope)
		if err != nil {
			return notFound(err, "pattern", e.ID)
		}
		if err := checkPatternImmutable(stored, e.RecurrencePattern); err != nil {
			return err
		}
		stored.Duration = e.Duration
		stored.Extensions = storage.CloneExtensions(e.Extensions)
		return repo.UpdatePattern(ctx, stored)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("pattern updated", "id", stored.ID)
	return &PatternEntry{stored}, nil
}

func checkPatternImmutable(stored, in *storage.RecurrencePattern) error {
	switch {
	case in.Type != stored.Type:
		return &ImmutableFieldError{Field: "type"}
	case !in.StartTime.Equal(stored.StartTime):
		return &ImmutableFieldError{Field: "startTime"}
	case in.RRule != "" && in.RRule != stored.RRule:
		return &ImmutableFieldError{Field: "rrule"}
	case in.TimeZone != "" && in.TimeZone != stored.TimeZone:
		return &ImmutableFieldError{Field: "timeZone"}
	case !in.RecurrenceEndTime.IsZero() && !in.RecurrenceEndTime.Equal(stored.RecurrenceEndTime):
		return &ImmutableFieldError{Field: "recurrenceEndTime"}
	case in.MonthDayStrategy.IsPresent() && in.MonthDayStrategy != stored.MonthDayStrategy:
		return &ImmutableFieldError{Field: "monthDayStrategy"}
	}
	return nil
}

func (s *Service) updateInstance(ctx context.Context, e *InstanceEntry) (Entry, error) {
	if err := validateInstance(e.StandaloneInstance); err != nil {
		return nil, err
	}
	var stored *storage.StandaloneInstance
	err := s.inTx(ctx, func(repo storage.Repository) error {
		var err error
		stored, err = repo.GetInstance(ctx, e.ID, e.Scope)
		if err != nil {
			return notFound(err, "instance", e.ID)
		}
		if e.Type != stored.Type {
			return &ImmutableFieldError{Field: "type"}
		}
		stored.StartTime = e.StartTime
		stored.Duration = e.Duration
		stored.Extensions = storage.CloneExtensions(e.Extensions)
		if e.TimeZone != "" {
			stored.TimeZone = e.TimeZone
		}
		return repo.UpdateInstance(ctx, stored)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("instance updated", "id", stored.ID)
	return &InstanceEntry{stored}, nil
}

// occurrenceOf loads the owning pattern of e and checks that it generates an
// occurrence at e's original time.
func (s *Service) occurrenceOf(ctx context.Context, repo storage.Repository, e *VirtualEntry) (*storage.RecurrencePattern, time.Time, error) {
	at := e.key()
	if at.IsZero() {
		return nil, at, indeterminate("virtualized entry without original time")
	}
	p, err := repo.GetPattern(ctx, e.RecurrenceID, e.Scope)
	if err != nil {
		return nil, at, notFound(err, "pattern", e.RecurrenceID)
	}
	ok, err := s.engine.GeneratesAt(p, at)
	if err != nil {
		return nil, at, fmt.Errorf("expand pattern %s: %w", p.ID, err)
	}
	if !ok {
		return nil, at, invalid("originalTime", "pattern %s has no occurrence at %s", p.ID, at.Format(time.RFC3339))
	}
	return p, at, nil
}

func findCancellation(ctx context.Context, repo storage.Repository, p *storage.RecurrencePattern, at time.Time) (*storage.Cancellation, error) {
	list, err := repo.ListCancellations(ctx, p.ID, p.Scope)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if c.OriginalTime.Equal(at) {
			return c, nil
		}
	}
	return nil, nil
}

func findModification(ctx context.Context, repo storage.Repository, p *storage.RecurrencePattern, at time.Time) (*storage.Modification, error) {
	list, err := repo.ListModifications(ctx, p.ID, p.Scope)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if m.OriginalTime.Equal(at) {
			return m, nil
		}
	}
	return nil, nil
}

func (s *Service) createModification(ctx context.Context, e *VirtualEntry) (Entry, error) {
	var out *VirtualEntry
	err := s.inTx(ctx, func(repo storage.Repository) error {
		p, at, err := s.occurrenceOf(ctx, repo, e)
		if err != nil {
			return err
		}
		if c, err := findCancellation(ctx, repo, p, at); err != nil {
			return err
		} else if c != nil {
			return invalid("originalTime", "occurrence at %s is cancelled", at.Format(time.RFC3339))
		}

		orig := e.Original.OrElse(Snapshot{StartTime: at, Duration: p.Duration, Extensions: p.Extensions})
		m := &storage.Modification{
			ID:                 s.newID(),
			Scope:              p.Scope,
			RecurrenceID:       p.ID,
			OriginalTime:       at,
			OriginalDuration:   orig.Duration,
			OriginalExtensions: storage.CloneExtensions(orig.Extensions),
			StartTime:          e.StartTime,
			Duration:           e.Duration,
			Extensions:         storage.CloneExtensions(e.Extensions),
		}
		if err := repo.CreateModification(ctx, m); err != nil {
			return fmt.Errorf("create modification: %w", err)
		}
		out = modifiedEntry(p, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("occurrence modified", "pattern", out.RecurrenceID,
		"original_time", out.OriginalTime, "modification", out.ModificationID.OrEmpty())
	return out, nil
}

func (s *Service) updateModification(ctx context.Context, e *VirtualEntry, id string) (Entry, error) {
	var out *VirtualEntry
	err := s.inTx(ctx, func(repo storage.Repository) error {
		m, err := repo.GetModification(ctx, id, e.Scope)
		if err != nil {
			return notFound(err, "modification", id)
		}
		if m.RecurrenceID != e.RecurrenceID {
			return &NotFoundError{Kind: "modification", ID: id, Err: storage.NotFound("modification", id)}
		}
		p, err := repo.GetPattern(ctx, m.RecurrenceID, m.Scope)
		if err != nil {
			return notFound(err, "pattern", m.RecurrenceID)
		}
		m.StartTime = e.StartTime
		m.Duration = e.Duration
		m.Extensions = storage.CloneExtensions(e.Extensions)
		if err := repo.UpdateModification(ctx, m); err != nil {
			return fmt.Errorf("update modification: %w", err)
		}
		out = modifiedEntry(p, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("modification updated", "pattern", out.RecurrenceID, "modification", id)
	return out, nil
}

// Delete removes a pattern or instance, or cancels a virtualized occurrence.
// Cancelling a modified occurrence removes its modification and keys the
// cancellation at the original time, in one unit of work.
func (s *Service) Delete(ctx context.Context, e Entry) error {
	switch v := e.(type) {
	case *PatternEntry:
		if v == nil || v.RecurrencePattern == nil || v.ID == "" {
			return indeterminate("pattern entry without id")
		}
		if err := s.inTx(ctx, func(repo storage.Repository) error {
			return notFound(repo.DeletePattern(ctx, v.ID, v.Scope), "pattern", v.ID)
		}); err != nil {
			return err
		}
		s.logger.Info("pattern deleted", "id", v.ID)
		return nil
	case *InstanceEntry:
		if v == nil || v.StandaloneInstance == nil || v.ID == "" {
			return indeterminate("instance entry without id")
		}
		if err := s.inTx(ctx, func(repo storage.Repository) error {
			return notFound(repo.DeleteInstance(ctx, v.ID, v.Scope), "instance", v.ID)
		}); err != nil {
			return err
		}
		s.logger.Info("instance deleted", "id", v.ID)
		return nil
	case *VirtualEntry:
		if v == nil || v.RecurrenceID == "" {
			return indeterminate("virtualized entry without recurrence id")
		}
		if id, ok := v.ModificationID.Get(); ok {
			return s.cancelModified(ctx, v, id)
		}
		return s.cancelClean(ctx, v)
	}
	return indeterminate("unsupported entry %T", e)
}

func (s *Service) cancelClean(ctx context.Context, e *VirtualEntry) error {
	var at time.Time
	err := s.inTx(ctx, func(repo storage.Repository) error {
		p, key, err := s.occurrenceOf(ctx, repo, e)
		if err != nil {
			return err
		}
		at = key
		// An override stored at the key would contradict the cancellation.
		if m, err := findModification(ctx, repo, p, at); err != nil {
			return err
		} else if m != nil {
			s.logger.Warn("removing modification shadowed by cancellation", "pattern", p.ID, "modification", m.ID)
			if err := repo.DeleteModification(ctx, m.ID, m.Scope); err != nil {
				return fmt.Errorf("delete modification: %w", err)
			}
		}
		return s.cancelAt(ctx, repo, p, at)
	})
	if err != nil {
		return err
	}
	s.logger.Info("occurrence cancelled", "pattern", e.RecurrenceID, "original_time", at)
	return nil
}

func (s *Service) cancelModified(ctx context.Context, e *VirtualEntry, id string) error {
	var at time.Time
	err := s.inTx(ctx, func(repo storage.Repository) error {
		m, err := repo.GetModification(ctx, id, e.Scope)
		if err != nil {
			return notFound(err, "modification", id)
		}
		if m.RecurrenceID != e.RecurrenceID {
			return &NotFoundError{Kind: "modification", ID: id, Err: storage.NotFound("modification", id)}
		}
		p, err := repo.GetPattern(ctx, m.RecurrenceID, m.Scope)
		if err != nil {
			return notFound(err, "pattern", m.RecurrenceID)
		}
		if err := repo.DeleteModification(ctx, m.ID, m.Scope); err != nil {
			return fmt.Errorf("delete modification: %w", err)
		}
		at = m.OriginalTime
		return s.cancelAt(ctx, repo, p, at)
	})
	if err != nil {
		return err
	}
	s.logger.Info("modified occurrence cancelled", "pattern", e.RecurrenceID, "modification", id, "original_time", at)
	return nil
}

// cancelAt creates the cancellation for at unless one already exists.
func (s *Service) cancelAt(ctx context.Context, repo storage.Repository, p *storage.RecurrencePattern, at time.Time) error {
	existing, err := findCancellation(ctx, repo, p, at)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	c := &storage.Cancellation{
		ID:           s.newID(),
		Scope:        p.Scope,
		RecurrenceID: p.ID,
		OriginalTime: at,
		Extensions:   map[string]string{},
	}
	if err := repo.CreateCancellation(ctx, c); err != nil {
		return fmt.Errorf("create cancellation: %w", err)
	}
	return nil
}

// Restore removes the modification of a virtualized occurrence so the pattern
// regenerates it.
func (s *Service) Restore(ctx context.Context, e Entry) error {
	var v *VirtualEntry
	switch t := e.(type) {
	case *PatternEntry:
		return &RestoreError{Reason: "cannot restore a recurrence pattern"}
	case *InstanceEntry:
		return &RestoreError{Reason: "cannot restore a standalone occurrence"}
	case *VirtualEntry:
		v = t
	default:
		return indeterminate("unsupported entry %T", e)
	}
	if v == nil {
		return indeterminate("nil virtualized occurrence")
	}
	id, ok := v.ModificationID.Get()
	if !ok {
		return &RestoreError{Reason: "occurrence has no override to restore"}
	}

	err := s.inTx(ctx, func(repo storage.Repository) error {
		m, err := repo.GetModification(ctx, id, v.Scope)
		if err != nil {
			return notFound(err, "modification", id)
		}
		if m.RecurrenceID != v.RecurrenceID {
			return &NotFoundError{Kind: "modification", ID: id, Err: storage.NotFound("modification", id)}
		}
		return notFound(repo.DeleteModification(ctx, id, v.Scope), "modification", id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("occurrence restored", "pattern", v.RecurrenceID, "modification", id)
	return nil
}
