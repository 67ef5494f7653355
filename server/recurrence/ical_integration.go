package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Draft carries the fields of a pattern read from an iCalendar component,
// ready to be submitted for creation.
type Draft struct {
	Type              string
	StartTime         time.Time
	Duration          time.Duration
	RecurrenceEndTime time.Time
	RRule             string
	TimeZone          string
	Extensions        map[string]string
}

// DefaultImportType is used when a component carries no CATEGORIES.
const DefaultImportType = "event"

// PatternFromComponent reads DTSTART, DTEND or DURATION, RRULE and TZID from
// a VEVENT. SUMMARY, DESCRIPTION, LOCATION, UID and X- properties become
// extensions; the first CATEGORIES value becomes the type.
func PatternFromComponent(comp *ical.Component) (*Draft, error) {
	if comp.Name != ical.CompEvent {
		return nil, fmt.Errorf("expected %s, got %s", ical.CompEvent, comp.Name)
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, fmt.Errorf("component has no %s", ical.PropDateTimeStart)
	}
	zone := startProp.Params.Get(ical.ParamTimezoneID)
	if zone == "" {
		zone = "UTC"
	}
	loc, err := LoadZone(zone)
	if err != nil {
		return nil, err
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ical.PropDateTimeStart, err)
	}

	duration, err := componentDuration(comp, start, loc)
	if err != nil {
		return nil, err
	}

	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil || rruleProp.Value == "" {
		return nil, fmt.Errorf("component has no %s", ical.PropRecurrenceRule)
	}
	rule, err := ParseRule(rruleProp.Value)
	if err != nil {
		return nil, err
	}

	d := &Draft{
		Type:              DefaultImportType,
		StartTime:         start.UTC(),
		Duration:          duration,
		RecurrenceEndTime: rule.Until(),
		RRule:             rule.Raw,
		TimeZone:          zone,
		Extensions:        map[string]string{},
	}
	if cat := comp.Props.Get(ical.PropCategories); cat != nil {
		if first, _, _ := strings.Cut(cat.Value, ","); strings.TrimSpace(first) != "" {
			d.Type = strings.TrimSpace(first)
		}
	}
	for _, name := range []string{ical.PropSummary, ical.PropDescription, ical.PropLocation, ical.PropUID} {
		if p := comp.Props.Get(name); p != nil && p.Value != "" {
			d.Extensions[strings.ToLower(name)] = p.Value
		}
	}
	for name, props := range comp.Props {
		if strings.HasPrefix(name, "X-") && len(props) > 0 {
			d.Extensions[name] = props[0].Value
		}
	}
	return d, nil
}

func componentDuration(comp *ical.Component, start time.Time, loc *time.Location) (time.Duration, error) {
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		end, err := endProp.DateTime(loc)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", ical.PropDateTimeEnd, err)
		}
		return end.Sub(start), nil
	}
	if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		dur, err := durProp.Duration()
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", ical.PropDuration, err)
		}
		return dur, nil
	}
	// All-day events without an end last one day.
	if isAllDayDate(start) {
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("component has neither %s nor %s", ical.PropDateTimeEnd, ical.PropDuration)
}

// isAllDayDate checks if a time represents an all-day date (time part is midnight)
func isAllDayDate(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
