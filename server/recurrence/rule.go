package recurrence

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule is a validated RFC 5545 RRULE body bounded by a UTC UNTIL.
type Rule struct {
	Raw     string
	Options rrule.ROption
}

// ParseRule parses and validates a rule body such as
// "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=20241231T090000Z". The rule must name
// FREQ, must end with a UTC UNTIL and must not use COUNT.
func ParseRule(raw string) (*Rule, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:")
	if raw == "" {
		return nil, ruleError("rule is empty")
	}
	if strings.ContainsAny(raw, "\r\n") {
		return nil, ruleError("rule must be a single RRULE line")
	}

	var until string
	for _, part := range strings.Split(raw, ";") {
		name, value, _ := strings.Cut(part, "=")
		switch strings.ToUpper(name) {
		case "COUNT":
			return nil, ruleError("COUNT is not supported, use UNTIL")
		case "DTSTART":
			return nil, ruleError("DTSTART belongs to the pattern, not the rule")
		case "UNTIL":
			until = value
		}
	}
	if until == "" {
		return nil, ruleError("rule must be bounded by UNTIL")
	}
	if len(until) != len(rrule.DateTimeFormat) || !strings.HasSuffix(until, "Z") {
		return nil, ruleError("UNTIL %q must be a UTC date-time like 20240131T090000Z", until)
	}

	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return nil, ruleError("%v", err)
	}
	probe := *opt
	probe.Dtstart = opt.Until
	if _, err := rrule.NewRRule(probe); err != nil {
		return nil, ruleError("%v", err)
	}
	return &Rule{Raw: raw, Options: *opt}, nil
}

// Until returns the rule's upper bound (UTC).
func (r *Rule) Until() time.Time {
	return r.Options.Until.UTC()
}

func (r *Rule) Freq() rrule.Frequency {
	return r.Options.Freq
}

// Interval returns INTERVAL, defaulting to 1.
func (r *Rule) Interval() int {
	if r.Options.Interval < 1 {
		return 1
	}
	return r.Options.Interval
}

// build returns an rrule-go iterator anchored at dtstart.
func (r *Rule) build(dtstart time.Time) (*rrule.RRule, error) {
	opt := r.Options
	opt.Dtstart = dtstart
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, ruleError("%v", err)
	}
	return rr, nil
}
