package calexport

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

const (
	ProductID = "-//caldora-recur//NONSGML v1.0//EN"

	PropModified         = "X-CALDORA-MODIFIED"
	PropType             = "X-CALDORA-TYPE"
	PropMonthDayStrategy = "X-CALDORA-MONTH-DAY-STRATEGY"
	PropOrganization     = "X-CALDORA-ORGANIZATION"
	PropResourcePath     = "X-CALDORA-RESOURCE-PATH"
	extPrefix            = "X-CALDORA-EXT-"
)

// extensionProps maps well-known extension keys back to their iCalendar
// properties. The import side uses the same names.
var extensionProps = map[string]string{
	"summary":     ical.PropSummary,
	"description": ical.PropDescription,
	"location":    ical.PropLocation,
}

// Calendar builds a VCALENDAR with one VEVENT per entry. stamp becomes the
// DTSTAMP of every event.
func Calendar(entries []occurrence.Entry, stamp time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	stamp = stamp.UTC().Truncate(time.Second)
	for _, e := range entries {
		event, err := eventOf(e)
		if err != nil {
			return nil, err
		}
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		cal.Children = append(cal.Children, event.Component)
	}
	return cal, nil
}

func eventOf(e occurrence.Entry) (*ical.Event, error) {
	event := ical.NewEvent()
	props := event.Props

	switch v := e.(type) {
	case *occurrence.PatternEntry:
		loc := zone(v.TimeZone)
		props.SetText(ical.PropUID, v.ID)
		props.SetDateTime(ical.PropDateTimeStart, v.StartTime.In(loc))
		props.SetDateTime(ical.PropDateTimeEnd, v.StartTime.Add(v.Duration).In(loc))
		rule := ical.NewProp(ical.PropRecurrenceRule)
		rule.Value = v.RRule
		props.Set(rule)
		if st, ok := v.MonthDayStrategy.Get(); ok {
			props.SetText(PropMonthDayStrategy, string(st))
		}
		setCommon(props, v.Organization, v.ResourcePath, v.Type, v.Extensions)
	case *occurrence.InstanceEntry:
		loc := zone(v.TimeZone)
		props.SetText(ical.PropUID, v.ID)
		props.SetDateTime(ical.PropDateTimeStart, v.StartTime.In(loc))
		props.SetDateTime(ical.PropDateTimeEnd, v.EndTime().In(loc))
		setCommon(props, v.Organization, v.ResourcePath, v.Type, v.Extensions)
	case *occurrence.VirtualEntry:
		loc := zone(v.TimeZone)
		props.SetText(ical.PropUID, v.RecurrenceID)
		props.SetDateTime(ical.PropRecurrenceID, v.OriginalTime.In(loc))
		props.SetDateTime(ical.PropDateTimeStart, v.StartTime.In(loc))
		props.SetDateTime(ical.PropDateTimeEnd, v.EndTime().In(loc))
		if v.Modified() {
			props.SetText(PropModified, "TRUE")
		}
		setCommon(props, v.Organization, v.ResourcePath, v.Type, v.Extensions)
	default:
		return nil, fmt.Errorf("export %T: %w", e, occurrence.ErrIndeterminateEntry)
	}
	return event, nil
}

func setCommon(props ical.Props, org, path, typ string, ext map[string]string) {
	props.SetText(ical.PropCategories, typ)
	props.SetText(PropType, typ)
	if org != "" {
		props.SetText(PropOrganization, org)
	}
	if path != "" {
		props.SetText(PropResourcePath, path)
	}
	for _, k := range slices.Sorted(maps.Keys(ext)) {
		props.SetText(extensionName(k), ext[k])
	}
}

// extensionName returns the property an extension key is written as.
func extensionName(key string) string {
	if name, ok := extensionProps[strings.ToLower(key)]; ok {
		return name
	}
	upper := strings.ToUpper(key)
	if strings.HasPrefix(upper, "X-") {
		return sanitize(upper)
	}
	return extPrefix + sanitize(upper)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, name)
}

// zone resolves an IANA name, falling back to UTC for names the entry could
// not have been stored with.
func zone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WriteICS encodes entries as an iCalendar stream.
func WriteICS(w io.Writer, entries []occurrence.Entry, stamp time.Time) error {
	cal, err := Calendar(entries, stamp)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
