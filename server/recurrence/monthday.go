package recurrence

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// monthDayTarget returns the day-of-month a simple monthly rule lands on:
// its single positive BYMONTHDAY, or the start day when none is given.
// Rules combining other BYxxx parts are not simple.
func monthDayTarget(r *Rule, start time.Time) (int, bool) {
	o := r.Options
	if o.Freq != rrule.MONTHLY {
		return 0, false
	}
	if len(o.Byweekday) > 0 || len(o.Byyearday) > 0 || len(o.Byweekno) > 0 || len(o.Bysetpos) > 0 ||
		len(o.Byeaster) > 0 || len(o.Byhour) > 0 || len(o.Byminute) > 0 || len(o.Bysecond) > 0 {
		return 0, false
	}
	switch len(o.Bymonthday) {
	case 0:
		return start.Day(), true
	case 1:
		if o.Bymonthday[0] > 0 {
			return o.Bymonthday[0], true
		}
	}
	return 0, false
}

// visits reports whether the rule's BYMONTH filter admits m.
func (r *Rule) visits(m time.Month) bool {
	return len(r.Options.Bymonth) == 0 || slices.Contains(r.Options.Bymonth, int(m))
}

// MissingMonths lists the months the series visits whose length is shorter
// than day and whose last day, at the series' time of day, lies within
// [start, until].
func MissingMonths(r *Rule, start time.Time, until time.Time, day int) []YearMonth {
	var out []YearMonth
	first := yearMonthOf(start)
	last := yearMonthOf(until.In(start.Location()))
	for k := 0; ; k += r.Interval() {
		ym := first.addMonths(k)
		if ym.after(last) {
			break
		}
		if !r.visits(ym.Month) || day <= ym.days() {
			continue
		}
		t := time.Date(ym.Year, ym.Month, ym.days(), start.Hour(), start.Minute(), start.Second(), 0, start.Location())
		if !t.Before(start) && !t.After(until) {
			out = append(out, ym)
		}
	}
	return out
}

// ResolveMonthDay decides the month-day strategy stored with a new pattern.
// It returns None when the rule never lands on a missing day, the chosen
// strategy for Skip and Clamp, and an *AmbiguousMonthDayError when the
// requested strategy is Throw or absent.
func ResolveMonthDay(s *Series, requested mo.Option[storage.MonthDayStrategy]) (mo.Option[storage.MonthDayStrategy], error) {
	none := mo.None[storage.MonthDayStrategy]()
	if st, ok := requested.Get(); ok && !st.Valid() {
		return none, fmt.Errorf("%w: unknown strategy %q", ErrInvalidStrategy, st)
	}

	day, ok := monthDayTarget(s.Rule, s.Start)
	if !ok {
		if st, present := requested.Get(); present && st == storage.MonthDayClamp {
			return none, fmt.Errorf("%w: clamp needs a monthly rule with at most one positive BYMONTHDAY", ErrInvalidStrategy)
		}
		return none, nil
	}
	if day <= 28 {
		return none, nil
	}
	months := MissingMonths(s.Rule, s.Start, s.Until, day)
	if len(months) == 0 {
		return none, nil
	}

	switch st := requested.OrElse(storage.MonthDayThrow); st {
	case storage.MonthDaySkip, storage.MonthDayClamp:
		return mo.Some(st), nil
	default:
		return none, &AmbiguousMonthDayError{Day: day, Months: months}
	}
}

// clampedCandidates walks the series month by month, placing each
// occurrence on min(targetDay, days in month). Months outside
// [s.Start, s.Until] or [winStart, winEnd) are skipped without ending the walk.
func clampedCandidates(s *Series, winStart, winEnd time.Time) ([]time.Time, error) {
	day, ok := monthDayTarget(s.Rule, s.Start)
	if !ok {
		return nil, fmt.Errorf("%w: clamp needs a monthly rule with at most one positive BYMONTHDAY", ErrInvalidStrategy)
	}

	interval := s.Rule.Interval()
	first := yearMonthOf(s.Start)
	last := yearMonthOf(s.Until.In(s.Location))
	if end := yearMonthOf(winEnd.In(s.Location)); last.after(end) {
		last = end
	}

	// Jump close to the window, keeping the interval phase.
	k := 0
	if diff := monthsBetween(first, yearMonthOf(winStart.In(s.Location))); diff > interval {
		k = (diff/interval - 1) * interval
	}

	var out []time.Time
	for ; ; k += interval {
		ym := first.addMonths(k)
		if ym.after(last) {
			break
		}
		if !s.Rule.visits(ym.Month) {
			continue
		}
		t := LocalToUTC(ym.Year, ym.Month, min(day, ym.days()),
			s.Start.Hour(), s.Start.Minute(), s.Start.Second(), s.Location)
		if t.Before(s.Start) || t.After(s.Until) || t.Before(winStart) || !t.Before(winEnd) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
