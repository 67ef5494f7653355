package recurrence

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Engine expands recurrence patterns into UTC candidate instants.
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates an engine without caching.
func NewEngine() *Engine {
	return NewEngineWithConfig(DisabledCacheConfig)
}

// Close stops the cache janitor, if any.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// CacheStats reports expansion cache usage. It is zero when caching is off.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Expand returns the instants p generates inside [start, end), clipped to
// [p.StartTime, p.RecurrenceEndTime], ascending and without duplicates.
func (e *Engine) Expand(p *storage.RecurrencePattern, start, end time.Time) ([]time.Time, error) {
	if !start.Before(end) {
		return nil, nil
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(p, start, end); ok {
			e.logger.Debug("expansion cache hit", "pattern", p.ID, "candidates", len(cached))
			return cached, nil
		}
	}

	s, err := Compile(p)
	if err != nil {
		return nil, err
	}
	out, err := e.expandSeries(s, start, end)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(p, start, end, out)
	}
	return out, nil
}

// GeneratesAt reports whether p produces an occurrence exactly at t.
func (e *Engine) GeneratesAt(p *storage.RecurrencePattern, t time.Time) (bool, error) {
	s, err := Compile(p)
	if err != nil {
		return false, err
	}
	got, err := e.expandSeries(s, t, t.Add(time.Second))
	if err != nil {
		return false, err
	}
	for _, c := range got {
		if c.Equal(t) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) expandSeries(s *Series, start, end time.Time) ([]time.Time, error) {
	var (
		raw []time.Time
		err error
	)
	if s.clamped() {
		raw, err = clampedCandidates(s, start, end)
	} else {
		raw, err = genericCandidates(s, start, end)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Before(raw[j]) })
	out := raw[:0]
	for i, t := range raw {
		if i > 0 && t.Equal(raw[i-1]) {
			e.logger.Warn("duplicate candidate instant dropped", "pattern", s.ID, "instant", t)
			continue
		}
		out = append(out, t)
	}

	if limit := e.config.MaxCandidatesPerPattern; limit > 0 && len(out) > limit {
		e.logger.Warn("expansion over limit", "pattern", s.ID, "candidates", len(out), "limit", limit)
		return nil, &TooManyCandidatesError{PatternID: s.ID, Candidates: len(out), Limit: limit}
	}
	e.logger.Debug("expanded pattern", "pattern", s.ID, "clamped", s.clamped(), "candidates", len(out))
	return out, nil
}

// genericCandidates delegates to rrule-go, expanding in the pattern's zone so
// wall-clock times survive DST changes. Days missing from a month are
// omitted by the library.
func genericCandidates(s *Series, start, end time.Time) ([]time.Time, error) {
	rr, err := s.Rule.build(s.Start)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, t := range rr.Between(start.In(s.Location), end.In(s.Location), true) {
		if !t.Before(end) || t.After(s.Until) || t.Before(s.Start) {
			continue
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
