package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// addMonths returns the month n months after ym.
func (ym YearMonth) addMonths(n int) YearMonth {
	total := ym.Year*12 + int(ym.Month) - 1 + n
	return YearMonth{Year: total / 12, Month: time.Month(total%12 + 1)}
}

func (ym YearMonth) after(other YearMonth) bool {
	return ym.Year > other.Year || (ym.Year == other.Year && ym.Month > other.Month)
}

func (ym YearMonth) days() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthsBetween(from, to YearMonth) int {
	return (to.Year-from.Year)*12 + int(to.Month) - int(from.Month)
}

func yearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Series is a pattern compiled for expansion: its rule parsed and its
// anchor converted to the pattern's zone.
type Series struct {
	ID       string
	Rule     *Rule
	Location *time.Location
	// Start is the pattern's StartTime in Location.
	Start time.Time
	// Until is the pattern's RecurrenceEndTime (UTC).
	Until    time.Time
	Strategy mo.Option[storage.MonthDayStrategy]
}

// Compile parses the rule and zone of p.
func Compile(p *storage.RecurrencePattern) (*Series, error) {
	rule, err := ParseRule(p.RRule)
	if err != nil {
		return nil, err
	}
	loc, err := LoadZone(p.TimeZone)
	if err != nil {
		return nil, err
	}
	return &Series{
		ID:       p.ID,
		Rule:     rule,
		Location: loc,
		Start:    p.StartTime.In(loc).Truncate(time.Second),
		Until:    p.RecurrenceEndTime.UTC(),
		Strategy: p.MonthDayStrategy,
	}, nil
}

// clamped reports whether expansion goes through the clamped-month generator.
func (s *Series) clamped() bool {
	st, ok := s.Strategy.Get()
	return ok && st == storage.MonthDayClamp
}
