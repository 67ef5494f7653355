package recurrence

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvent(t *testing.T, body string) *ical.Component {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(strings.ReplaceAll(body, "\n", "\r\n"))).Decode()
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	return events[0].Component
}

func TestPatternFromComponent(t *testing.T) {
	comp := decodeEvent(t, `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup-1
DTSTAMP:20240101T000000Z
DTSTART;TZID=Europe/Berlin:20240105T093000
DTEND;TZID=Europe/Berlin:20240105T094500
RRULE:FREQ=WEEKLY;BYDAY=FR;UNTIL=20240329T083000Z
SUMMARY:Standup
CATEGORIES:meeting,team
X-ROOM:4.01
END:VEVENT
END:VCALENDAR
`)

	d, err := PatternFromComponent(comp)
	require.NoError(t, err)
	assert.Equal(t, "meeting", d.Type)
	assert.Equal(t, "Europe/Berlin", d.TimeZone)
	assert.True(t, d.StartTime.Equal(time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)))
	assert.Equal(t, 15*time.Minute, d.Duration)
	assert.True(t, d.RecurrenceEndTime.Equal(time.Date(2024, 3, 29, 8, 30, 0, 0, time.UTC)))
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=FR;UNTIL=20240329T083000Z", d.RRule)
	assert.Equal(t, "Standup", d.Extensions["summary"])
	assert.Equal(t, "standup-1", d.Extensions["uid"])
	assert.Equal(t, "4.01", d.Extensions["X-ROOM"])
}

func TestPatternFromComponent_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"open ended rule", `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:a
DTSTAMP:20240101T000000Z
DTSTART:20240105T093000Z
DURATION:PT1H
RRULE:FREQ=DAILY
END:VEVENT
END:VCALENDAR
`},
		{"no rule", `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:b
DTSTAMP:20240101T000000Z
DTSTART:20240105T093000Z
DURATION:PT1H
END:VEVENT
END:VCALENDAR
`},
		{"no end", `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:c
DTSTAMP:20240101T000000Z
DTSTART:20240105T093000Z
RRULE:FREQ=DAILY;UNTIL=20240110T093000Z
END:VEVENT
END:VCALENDAR
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PatternFromComponent(decodeEvent(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestPatternFromComponent_DurationProperty(t *testing.T) {
	comp := decodeEvent(t, `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:d
DTSTAMP:20240101T000000Z
DTSTART:20240105T093000Z
DURATION:PT90M
RRULE:FREQ=DAILY;UNTIL=20240110T093000Z
END:VEVENT
END:VCALENDAR
`)
	d, err := PatternFromComponent(comp)
	require.NoError(t, err)
	assert.Equal(t, "UTC", d.TimeZone)
	assert.Equal(t, 90*time.Minute, d.Duration)
	assert.Equal(t, DefaultImportType, d.Type)
}

func TestPatternFromComponent_WrongComponent(t *testing.T) {
	_, err := PatternFromComponent(ical.NewComponent(ical.CompToDo))
	assert.Error(t, err)
}
