package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/storage"
)

func monthlyPattern(start time.Time, rule, zone string, strategy mo.Option[storage.MonthDayStrategy]) *storage.RecurrencePattern {
	r, err := ParseRule(rule)
	if err != nil {
		panic(err)
	}
	return &storage.RecurrencePattern{
		ID:                "monthly",
		Type:              "billing",
		StartTime:         start,
		Duration:          time.Hour,
		RecurrenceEndTime: r.Until(),
		RRule:             rule,
		TimeZone:          zone,
		MonthDayStrategy:  strategy,
	}
}

func compile(t *testing.T, p *storage.RecurrencePattern) *Series {
	t.Helper()
	s, err := Compile(p)
	require.NoError(t, err)
	return s
}

func TestResolveMonthDay(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	until := "UNTIL=20240430T090000Z"
	none := mo.None[storage.MonthDayStrategy]()

	t.Run("throw by default names day and months", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;BYMONTHDAY=31;"+until, "UTC", none))
		_, err := ResolveMonthDay(s, none)
		require.ErrorIs(t, err, ErrAmbiguousMonthDay)

		var amb *AmbiguousMonthDayError
		require.ErrorAs(t, err, &amb)
		assert.Equal(t, 31, amb.Day)
		assert.Equal(t, []YearMonth{{2024, time.February}, {2024, time.April}}, amb.Months)
		assert.Contains(t, err.Error(), "2024-02, 2024-04")
	})

	t.Run("explicit throw fails too", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;BYMONTHDAY=31;"+until, "UTC", none))
		_, err := ResolveMonthDay(s, mo.Some(storage.MonthDayThrow))
		assert.ErrorIs(t, err, ErrAmbiguousMonthDay)
	})

	t.Run("skip and clamp are stored", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;"+until, "UTC", none))
		for _, st := range []storage.MonthDayStrategy{storage.MonthDaySkip, storage.MonthDayClamp} {
			got, err := ResolveMonthDay(s, mo.Some(st))
			require.NoError(t, err)
			assert.Equal(t, mo.Some(st), got)
		}
	})

	t.Run("start day uses implicit month day", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;"+until, "UTC", none))
		_, err := ResolveMonthDay(s, none)
		assert.ErrorIs(t, err, ErrAmbiguousMonthDay)
	})

	t.Run("day up to 28 needs nothing", func(t *testing.T) {
		s := compile(t, monthlyPattern(time.Date(2024, 1, 28, 9, 0, 0, 0, time.UTC), "FREQ=MONTHLY;"+until, "UTC", none))
		got, err := ResolveMonthDay(s, mo.Some(storage.MonthDayClamp))
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
	})

	t.Run("range without short months needs nothing", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=20240331T090000Z;INTERVAL=2", "UTC", none))
		got, err := ResolveMonthDay(s, none)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
	})

	t.Run("last month past until is not affected", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=20240410T090000Z", "UTC", none))
		_, err := ResolveMonthDay(s, none)
		var amb *AmbiguousMonthDayError
		require.ErrorAs(t, err, &amb)
		assert.Equal(t, []YearMonth{{2024, time.February}}, amb.Months)
	})

	t.Run("non monthly rules need nothing", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=DAILY;"+until, "UTC", none))
		got, err := ResolveMonthDay(s, none)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
	})

	t.Run("clamp rejected for complex monthly rules", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;BYDAY=-1FR;"+until, "UTC", none))
		_, err := ResolveMonthDay(s, mo.Some(storage.MonthDayClamp))
		assert.ErrorIs(t, err, ErrInvalidStrategy)

		got, err := ResolveMonthDay(s, mo.Some(storage.MonthDaySkip))
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
	})

	t.Run("unknown strategy", func(t *testing.T) {
		s := compile(t, monthlyPattern(jan31, "FREQ=MONTHLY;"+until, "UTC", none))
		_, err := ResolveMonthDay(s, mo.Some(storage.MonthDayStrategy("round")))
		assert.ErrorIs(t, err, ErrInvalidStrategy)
	})
}

func localDays(ts []time.Time, loc *time.Location) []int {
	out := make([]int, len(ts))
	for i, t := range ts {
		out[i] = t.In(loc).Day()
	}
	return out
}

func TestClamp_JanuaryToApril(t *testing.T) {
	engine := NewEngine()
	for _, tc := range []struct {
		year int
		want []int
	}{
		{2024, []int{31, 29, 31, 30}},
		{2023, []int{31, 28, 31, 30}},
	} {
		start := time.Date(tc.year, 1, 31, 9, 0, 0, 0, time.UTC)
		until := time.Date(tc.year, 4, 30, 9, 0, 0, 0, time.UTC)
		rule := "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=" + until.Format("20060102T150405Z")
		p := monthlyPattern(start, rule, "UTC", mo.Some(storage.MonthDayClamp))

		got, err := engine.Expand(p, start, until.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, tc.want, localDays(got, time.UTC), "year %d", tc.year)
		for i, g := range got {
			assert.Equal(t, time.Month(i+1), g.Month(), "no rollover into the next month")
			assert.Equal(t, 9, g.Hour())
		}
	}
}

func TestClamp_LocalZoneAndInterval(t *testing.T) {
	berlin, err := LoadZone("Europe/Berlin")
	require.NoError(t, err)
	start := time.Date(2024, 1, 31, 18, 30, 0, 0, berlin)
	until := time.Date(2024, 12, 31, 18, 30, 0, 0, berlin).UTC()
	rule := "FREQ=MONTHLY;INTERVAL=3;UNTIL=" + until.Format("20060102T150405Z")
	p := monthlyPattern(start.UTC(), rule, "Europe/Berlin", mo.Some(storage.MonthDayClamp))

	got, err := NewEngine().Expand(p, start.UTC(), until.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []int{31, 30, 31, 31}, localDays(got, berlin)) // Jan, Apr, Jul, Oct
	for _, g := range got {
		local := g.In(berlin)
		assert.Equal(t, 18, local.Hour())
		assert.Equal(t, 30, local.Minute())
	}
}

func TestClamp_WindowInsideLongSeries(t *testing.T) {
	start := time.Date(2020, 1, 31, 9, 0, 0, 0, time.UTC)
	until := time.Date(2030, 12, 31, 9, 0, 0, 0, time.UTC)
	rule := "FREQ=MONTHLY;INTERVAL=2;UNTIL=" + until.Format("20060102T150405Z")
	p := monthlyPattern(start, rule, "UTC", mo.Some(storage.MonthDayClamp))

	winStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	winEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	got, err := NewEngine().Expand(p, winStart, winEnd)
	require.NoError(t, err)
	// Odd months keep the phase of January 2020.
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC), got[1])
}

func TestClamp_BoundaryMonths(t *testing.T) {
	start := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	until := time.Date(2024, 5, 31, 9, 0, 0, 0, time.UTC)
	rule := "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=" + until.Format("20060102T150405Z")
	p := monthlyPattern(start, rule, "UTC", mo.Some(storage.MonthDayClamp))

	got, err := NewEngine().Expand(p, start.AddDate(0, -1, 0), until.AddDate(0, 1, 0))
	require.NoError(t, err)
	// 12:00 on May 31 is after UNTIL, so May is clipped.
	assert.Equal(t, []time.Time{
		time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC),
	}, got)
}

// The generic evaluator provides Skip without a dedicated code path; check it
// against the clamp walk across leap and common years in a DST zone.
func TestSkip_MatchesClampOnExistingDays(t *testing.T) {
	for _, zone := range []string{"UTC", "America/New_York", "Australia/Sydney"} {
		t.Run(zone, func(t *testing.T) {
			loc, err := LoadZone(zone)
			require.NoError(t, err)
			for _, day := range []int{29, 30, 31} {
				start := time.Date(2023, 1, day, 23, 15, 0, 0, loc).UTC()
				until := time.Date(2025, 1, day, 23, 15, 0, 0, loc).UTC()
				rule := "FREQ=MONTHLY;UNTIL=" + until.Format("20060102T150405Z")

				skip, err := NewEngine().Expand(monthlyPattern(start, rule, zone, mo.Some(storage.MonthDaySkip)), start, until.Add(time.Second))
				require.NoError(t, err)
				clamp, err := NewEngine().Expand(monthlyPattern(start, rule, zone, mo.Some(storage.MonthDayClamp)), start, until.Add(time.Second))
				require.NoError(t, err)

				var expected []time.Time
				for _, c := range clamp {
					if c.In(loc).Day() == day {
						expected = append(expected, c)
					}
				}
				assert.Equal(t, expected, skip, "day %d", day)

				s := compile(t, monthlyPattern(start, rule, zone, mo.None[storage.MonthDayStrategy]()))
				missing := MissingMonths(s.Rule, s.Start, s.Until, day)
				assert.Len(t, skip, len(clamp)-len(missing), "day %d", day)
			}
		})
	}
}

func TestYearMonth(t *testing.T) {
	ym := YearMonth{2023, time.November}
	assert.Equal(t, YearMonth{2024, time.February}, ym.addMonths(3))
	assert.Equal(t, "2024-02", ym.addMonths(3).String())
	assert.Equal(t, 29, YearMonth{2024, time.February}.days())
	assert.Equal(t, 28, YearMonth{2100, time.February}.days())
	assert.Equal(t, 15, monthsBetween(ym, YearMonth{2025, time.February}))
	assert.True(t, YearMonth{2024, time.January}.after(ym))
}
