package calexport

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/occurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

var (
	scope = storage.Scope{Organization: "acme", ResourcePath: "/rooms/1"}
	t0    = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	stamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func sampleEntries() []occurrence.Entry {
	pattern := &occurrence.PatternEntry{RecurrencePattern: &storage.RecurrencePattern{
		ID: "p1", Scope: scope, Type: "meeting", StartTime: t0, Duration: time.Hour,
		RecurrenceEndTime: t0.AddDate(0, 0, 4), RRule: "FREQ=DAILY;UNTIL=20240308T080000Z",
		TimeZone: "Europe/Berlin", Extensions: map[string]string{"summary": "Standup"},
		MonthDayStrategy: mo.None[storage.MonthDayStrategy](),
	}}
	clean := &occurrence.VirtualEntry{
		RecurrenceID: "p1", Scope: scope, Type: "meeting", OriginalTime: t0,
		StartTime: t0, Duration: time.Hour, TimeZone: "Europe/Berlin",
		Extensions: map[string]string{"summary": "Standup"},
	}
	moved := &occurrence.VirtualEntry{
		RecurrenceID: "p1", Scope: scope, Type: "meeting", OriginalTime: t0.AddDate(0, 0, 1),
		StartTime: t0.AddDate(0, 0, 1).Add(2 * time.Hour), Duration: 30 * time.Minute, TimeZone: "Europe/Berlin",
		Extensions:     map[string]string{"summary": "Standup", "room": "B"},
		Original:       mo.Some(occurrence.Snapshot{StartTime: t0.AddDate(0, 0, 1), Duration: time.Hour}),
		ModificationID: mo.Some("m1"),
	}
	instance := &occurrence.InstanceEntry{StandaloneInstance: &storage.StandaloneInstance{
		ID: "i1", Scope: scope, Type: "review", StartTime: t0.Add(3 * time.Hour), Duration: time.Hour,
		Extensions: map[string]string{"X-Color": "red"},
	}}
	return []occurrence.Entry{pattern, clean, moved, instance}
}

func decode(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

func TestWriteICS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteICS(&buf, sampleEntries(), stamp))

	cal := decode(t, buf.Bytes())
	prodID, err := cal.Props.Text(ical.PropProductID)
	require.NoError(t, err)
	assert.Equal(t, ProductID, prodID)

	events := cal.Events()
	require.Len(t, events, 4)

	t.Run("pattern", func(t *testing.T) {
		e := events[0]
		uid, _ := e.Props.Text(ical.PropUID)
		assert.Equal(t, "p1", uid)
		assert.Equal(t, "FREQ=DAILY;UNTIL=20240308T080000Z", e.Props.Get(ical.PropRecurrenceRule).Value)
		start := e.Props.Get(ical.PropDateTimeStart)
		assert.Equal(t, "Europe/Berlin", start.Params.Get(ical.ParamTimezoneID))
		assert.Equal(t, "20240304T090000", start.Value)
		summary, _ := e.Props.Text(ical.PropSummary)
		assert.Equal(t, "Standup", summary)
		assert.Nil(t, e.Props.Get(PropMonthDayStrategy))
	})

	t.Run("clean occurrence", func(t *testing.T) {
		e := events[1]
		uid, _ := e.Props.Text(ical.PropUID)
		assert.Equal(t, "p1", uid)
		rid, err := e.Props.DateTime(ical.PropRecurrenceID, nil)
		require.NoError(t, err)
		assert.True(t, rid.Equal(t0))
		assert.Nil(t, e.Props.Get(PropModified))
	})

	t.Run("modified occurrence", func(t *testing.T) {
		e := events[2]
		rid, err := e.Props.DateTime(ical.PropRecurrenceID, nil)
		require.NoError(t, err)
		assert.True(t, rid.Equal(t0.AddDate(0, 0, 1)))
		start, err := e.Props.DateTime(ical.PropDateTimeStart, nil)
		require.NoError(t, err)
		assert.True(t, start.Equal(t0.AddDate(0, 0, 1).Add(2*time.Hour)))
		modified, _ := e.Props.Text(PropModified)
		assert.Equal(t, "TRUE", modified)
		room, _ := e.Props.Text("X-CALDORA-EXT-ROOM")
		assert.Equal(t, "B", room)
	})

	t.Run("instance", func(t *testing.T) {
		e := events[3]
		start := e.Props.Get(ical.PropDateTimeStart)
		assert.Equal(t, "20240304T110000Z", start.Value)
		color, _ := e.Props.Text("X-COLOR")
		assert.Equal(t, "red", color)
		cat, _ := e.Props.Text(ical.PropCategories)
		assert.Equal(t, "review", cat)
		dtstamp, err := e.Props.DateTime(ical.PropDateTimeStamp, nil)
		require.NoError(t, err)
		assert.True(t, dtstamp.Equal(stamp))
	})
}

func TestWriteICS_NilEntry(t *testing.T) {
	var buf bytes.Buffer
	err := WriteICS(&buf, []occurrence.Entry{nil}, stamp)
	assert.ErrorIs(t, err, occurrence.ErrIndeterminateEntry)
}

func TestWriteXCal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXCal(&buf, sampleEntries(), stamp))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "icalendar", root.Tag)
	assert.Equal(t, XCal, root.SelectAttrValue("xmlns", ""))

	events := doc.FindElements("/icalendar/vcalendar/components/vevent")
	require.Len(t, events, 4)

	rrule := events[0].FindElement("properties/rrule/recur")
	require.NotNil(t, rrule)
	assert.Equal(t, "DAILY", rrule.SelectElement("freq").Text())
	assert.Equal(t, "2024-03-08T08:00:00Z", rrule.SelectElement("until").Text())

	start := events[0].FindElement("properties/dtstart")
	require.NotNil(t, start)
	assert.Equal(t, "Europe/Berlin", start.FindElement("parameters/tzid/text").Text())
	assert.Equal(t, "2024-03-04T09:00:00", start.SelectElement("date-time").Text())

	rid := events[2].FindElement("properties/recurrence-id/date-time")
	require.NotNil(t, rid)
	assert.Equal(t, "2024-03-05T09:00:00", rid.Text())
	assert.Equal(t, "TRUE", events[2].FindElement("properties/x-caldora-modified/text").Text())
	assert.Nil(t, events[1].FindElement("properties/x-caldora-modified"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleEntries()))

	var out []occurrence.EntryJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 4)
	assert.Equal(t, occurrence.KindPattern, out[0].Kind)
	assert.Equal(t, occurrence.KindVirtual, out[2].Kind)
	require.NotNil(t, out[2].ModificationID)
	assert.Equal(t, "m1", *out[2].ModificationID)
	assert.Equal(t, "30m0s", out[2].Duration)
	assert.Equal(t, occurrence.KindInstance, out[3].Kind)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestExtensionName(t *testing.T) {
	tests := map[string]string{
		"summary":  ical.PropSummary,
		"Location": ical.PropLocation,
		"x-color":  "X-COLOR",
		"room":     "X-CALDORA-EXT-ROOM",
		"cost.eur": "X-CALDORA-EXT-COST-EUR",
	}
	for key, want := range tests {
		assert.Equal(t, want, extensionName(key), key)
	}
}
