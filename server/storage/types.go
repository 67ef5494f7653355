package storage

import (
	"time"

	"github.com/samber/mo"
)

// MonthDayStrategy decides what a monthly pattern does in months that lack its day-of-month.
type MonthDayStrategy string

const (
	// MonthDayThrow rejects the pattern at creation time.
	MonthDayThrow MonthDayStrategy = "throw"
	// MonthDaySkip omits the occurrence for months lacking the day.
	MonthDaySkip MonthDayStrategy = "skip"
	// MonthDayClamp moves the occurrence to the last day of a short month.
	MonthDayClamp MonthDayStrategy = "clamp"
)

// Valid reports whether s is one of the known strategies.
func (s MonthDayStrategy) Valid() bool {
	switch s {
	case MonthDayThrow, MonthDaySkip, MonthDayClamp:
		return true
	}
	return false
}

// Scope isolates data ownership. Children of a pattern must carry the
// pattern's scope exactly.
type Scope struct {
	Organization string
	ResourcePath string
}

// RecurrencePattern is a rule generating repeating occurrences.
// Only Duration and Extensions may change after creation.
type RecurrencePattern struct {
	ID string
	Scope

	Type string
	// StartTime anchors the time-of-day of every occurrence (UTC).
	StartTime time.Time
	Duration  time.Duration
	// RecurrenceEndTime equals the UNTIL bound of RRule (UTC).
	RecurrenceEndTime time.Time
	// RRule is the RFC 5545 rule body, e.g. "FREQ=DAILY;UNTIL=20240105T090000Z".
	RRule string
	// TimeZone is an IANA zone id used to expand RRule in local time.
	TimeZone   string
	Extensions map[string]string
	// MonthDayStrategy is only present when the pattern's day-of-month is
	// missing from at least one covered month.
	MonthDayStrategy mo.Option[MonthDayStrategy]

	Created  time.Time
	Modified time.Time
}

// StandaloneInstance is a single occurrence unrelated to any pattern.
type StandaloneInstance struct {
	ID string
	Scope

	Type       string
	StartTime  time.Time
	Duration   time.Duration
	TimeZone   string
	Extensions map[string]string

	Created  time.Time
	Modified time.Time
}

// EndTime is always derived from StartTime and Duration.
func (i *StandaloneInstance) EndTime() time.Time {
	return i.StartTime.Add(i.Duration)
}

// Cancellation suppresses the occurrence a pattern would produce at OriginalTime.
// Cancellations are created and deleted, never updated.
type Cancellation struct {
	ID string
	Scope

	RecurrenceID string
	// OriginalTime is the UTC instant the pattern generates; it is the lookup key.
	OriginalTime time.Time
	Extensions   map[string]string

	Created time.Time
}

// Modification replaces the occurrence a pattern would produce at OriginalTime.
// At most one Modification exists per (RecurrenceID, OriginalTime).
type Modification struct {
	ID string
	Scope

	RecurrenceID string
	OriginalTime time.Time
	// Snapshot of the pattern's values when the modification was created.
	OriginalDuration   time.Duration
	OriginalExtensions map[string]string

	StartTime  time.Time
	Duration   time.Duration
	Extensions map[string]string

	Created  time.Time
	Modified time.Time
}

// EndTime is always derived from StartTime and Duration.
func (m *Modification) EndTime() time.Time {
	return m.StartTime.Add(m.Duration)
}

// RangeQuery selects patterns or instances of one scope overlapping [Start, End).
type RangeQuery struct {
	Scope
	Start time.Time
	End   time.Time
	// Types restricts the result to these types. Nil means no filter.
	Types []string
}

// MatchesType reports whether typ passes the query's type filter.
func (q RangeQuery) MatchesType(typ string) bool {
	if q.Types == nil {
		return true
	}
	for _, t := range q.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// PatternOverlaps reports whether p's active span [StartTime, RecurrenceEndTime]
// intersects [start, end).
func PatternOverlaps(p *RecurrencePattern, start, end time.Time) bool {
	return p.StartTime.Before(end) && !p.RecurrenceEndTime.Before(start)
}

// SpanOverlaps reports whether [s, e) intersects [start, end).
func SpanOverlaps(s, e, start, end time.Time) bool {
	return s.Before(end) && e.After(start)
}

// ModificationRelevant reports whether m matters to a query over [start, end):
// either its original time falls inside the window, or its current span overlaps it.
func ModificationRelevant(m *Modification, start, end time.Time) bool {
	if !m.OriginalTime.Before(start) && m.OriginalTime.Before(end) {
		return true
	}
	return SpanOverlaps(m.StartTime, m.EndTime(), start, end)
}

// CloneExtensions copies an extensions map, returning an empty map for nil.
func CloneExtensions(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
