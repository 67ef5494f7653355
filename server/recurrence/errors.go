package recurrence

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRule reports an unparsable, open-ended or count-based rule.
	ErrInvalidRule = errors.New("invalid recurrence rule")
	// ErrInvalidZone reports an unknown IANA zone id.
	ErrInvalidZone = errors.New("invalid time zone")
	// ErrInvalidStrategy reports a month-day strategy that cannot apply to the rule.
	ErrInvalidStrategy = errors.New("invalid month-day strategy")
	// ErrAmbiguousMonthDay reports a monthly rule whose day is missing from some
	// covered months while no strategy was chosen.
	ErrAmbiguousMonthDay = errors.New("ambiguous month day")
	// ErrTooManyCandidates reports an expansion above MaxCandidatesPerPattern.
	ErrTooManyCandidates = errors.New("too many candidates")
)

func ruleError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

// AmbiguousMonthDayError names the day-of-month and the months lacking it so
// the caller can resubmit with an explicit strategy.
type AmbiguousMonthDayError struct {
	Day    int
	Months []YearMonth
}

func (e *AmbiguousMonthDayError) Error() string {
	names := make([]string, len(e.Months))
	for i, m := range e.Months {
		names[i] = m.String()
	}
	return fmt.Sprintf("day %d does not exist in %s; resubmit with month-day strategy skip or clamp",
		e.Day, strings.Join(names, ", "))
}

func (e *AmbiguousMonthDayError) Is(target error) bool {
	return target == ErrAmbiguousMonthDay
}

// TooManyCandidatesError names the pattern whose expansion of one window
// exceeded the configured limit.
type TooManyCandidatesError struct {
	PatternID  string
	Candidates int
	Limit      int
}

func (e *TooManyCandidatesError) Error() string {
	return fmt.Sprintf("pattern %s yields %d candidates in the window, limit is %d; narrow the window",
		e.PatternID, e.Candidates, e.Limit)
}

func (e *TooManyCandidatesError) Is(target error) bool {
	return target == ErrTooManyCandidates
}
