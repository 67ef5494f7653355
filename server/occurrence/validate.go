package occurrence

import (
	"time"
	"unicode/utf8"

	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

const maxFieldLength = 100

func validateScope(s storage.Scope) error {
	if utf8.RuneCountInString(s.Organization) > maxFieldLength {
		return invalid("organization", "longer than %d characters", maxFieldLength)
	}
	if utf8.RuneCountInString(s.ResourcePath) > maxFieldLength {
		return invalid("resourcePath", "longer than %d characters", maxFieldLength)
	}
	return nil
}

func validateType(typ string) error {
	if typ == "" {
		return invalid("type", "is required")
	}
	if utf8.RuneCountInString(typ) > maxFieldLength {
		return invalid("type", "longer than %d characters", maxFieldLength)
	}
	return nil
}

func validateUTC(field string, t time.Time) error {
	if t.IsZero() {
		return invalid(field, "is required")
	}
	if t.Location() != time.UTC {
		return invalid(field, "must be a UTC instant, got zone %s", t.Location())
	}
	return nil
}

func validateDuration(field string, d time.Duration) error {
	if d <= 0 {
		return invalid(field, "must be positive, got %s", d)
	}
	return nil
}

func validateTypes(types []string) error {
	if types != nil && len(types) == 0 {
		return invalid("types", "empty filter; pass nil for no filter")
	}
	return nil
}

func validateQuery(q Query) error {
	if err := validateScope(q.Scope); err != nil {
		return err
	}
	if err := validateUTC("start", q.Start); err != nil {
		return err
	}
	if err := validateUTC("end", q.End); err != nil {
		return err
	}
	if q.End.Before(q.Start) {
		return invalid("end", "before start")
	}
	return validateTypes(q.Types)
}

func validateInstance(i *storage.StandaloneInstance) error {
	if err := validateScope(i.Scope); err != nil {
		return err
	}
	if err := validateType(i.Type); err != nil {
		return err
	}
	if err := validateUTC("startTime", i.StartTime); err != nil {
		return err
	}
	if err := validateDuration("duration", i.Duration); err != nil {
		return err
	}
	if i.TimeZone != "" {
		if _, err := recurrence.LoadZone(i.TimeZone); err != nil {
			return fromRecurrence(err)
		}
	}
	return nil
}

// buildPattern validates req and returns the pattern to persist, with its
// month-day strategy resolved.
func buildPattern(req PatternRequest) (*storage.RecurrencePattern, error) {
	if err := validateScope(req.Scope); err != nil {
		return nil, err
	}
	if err := validateType(req.Type); err != nil {
		return nil, err
	}
	if err := validateUTC("startTime", req.StartTime); err != nil {
		return nil, err
	}
	if req.StartTime.Nanosecond() != 0 {
		return nil, invalid("startTime", "must be whole seconds")
	}
	if err := validateDuration("duration", req.Duration); err != nil {
		return nil, err
	}
	if _, err := recurrence.LoadZone(req.TimeZone); err != nil {
		return nil, fromRecurrence(err)
	}
	rule, err := recurrence.ParseRule(req.RRule)
	if err != nil {
		return nil, fromRecurrence(err)
	}
	until := rule.Until()
	if !req.RecurrenceEndTime.IsZero() {
		if err := validateUTC("recurrenceEndTime", req.RecurrenceEndTime); err != nil {
			return nil, err
		}
		if !req.RecurrenceEndTime.Equal(until) {
			return nil, invalid("recurrenceEndTime", "must equal the rule's UNTIL %s", until.Format(time.RFC3339))
		}
	}
	if until.Before(req.StartTime) {
		return nil, invalid("rrule", "UNTIL %s is before startTime", until.Format(time.RFC3339))
	}

	p := &storage.RecurrencePattern{
		Scope:             req.Scope,
		Type:              req.Type,
		StartTime:         req.StartTime,
		Duration:          req.Duration,
		RecurrenceEndTime: until,
		RRule:             rule.Raw,
		TimeZone:          req.TimeZone,
		Extensions:        storage.CloneExtensions(req.Extensions),
	}
	series, err := recurrence.Compile(p)
	if err != nil {
		return nil, fromRecurrence(err)
	}
	p.MonthDayStrategy, err = recurrence.ResolveMonthDay(series, req.MonthDayStrategy)
	if err != nil {
		return nil, fromRecurrence(err)
	}
	return p, nil
}
