package occurrence

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// PatternRequest describes a recurrence pattern to create.
type PatternRequest struct {
	storage.Scope

	Type      string
	StartTime time.Time
	Duration  time.Duration
	// RRule must be bounded by a UTC UNTIL and must not use COUNT.
	RRule string
	// RecurrenceEndTime is optional; when set it must equal the rule's UNTIL.
	RecurrenceEndTime time.Time
	TimeZone          string
	Extensions        map[string]string
	// MonthDayStrategy answers a previous ErrAmbiguousMonthDay. Absent means throw.
	MonthDayStrategy mo.Option[storage.MonthDayStrategy]
}

// InstanceRequest describes a standalone instance to create.
type InstanceRequest struct {
	storage.Scope

	Type       string
	StartTime  time.Time
	Duration   time.Duration
	TimeZone   string
	Extensions map[string]string
}

// Query selects the occurrences of one scope starting inside [Start, End).
type Query struct {
	storage.Scope

	Start time.Time
	End   time.Time
	// Types restricts results to these types. Nil means no filter; an empty
	// non-nil slice is rejected.
	Types []string
}
