package occurrence

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
	"github.com/cyp0633/caldora-recur/server/storage/memory"
)

func TestOccurrences_EndToEndDaily(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	p := mustCreateDaily(t, svc, 4)

	all := query(t, svc, window(0, 5))
	require.Len(t, all, 5)

	require.NoError(t, svc.Delete(ctx, occurrenceAt(all, day(2))))

	fourth := occurrenceAt(all, day(4))
	fourth.Duration = 2 * p.Duration
	_, err := svc.Update(ctx, fourth)
	require.NoError(t, err)

	got := query(t, svc, window(0, 5))
	require.Len(t, got, 4)
	var days []int
	for _, v := range virtuals(got) {
		days = append(days, int(v.OriginalTime.Sub(day0)/(24*time.Hour)))
	}
	assert.Equal(t, []int{0, 1, 3, 4}, days)

	modified := occurrenceAt(got, day(4))
	assert.Equal(t, 2*time.Hour, modified.Duration)
	assert.True(t, modified.Original.IsPresent())
	assert.True(t, modified.Modified())
	assert.Equal(t, time.Hour, modified.Original.MustGet().Duration)

	clean := occurrenceAt(got, day(1))
	assert.True(t, clean.Original.IsAbsent())
	assert.True(t, clean.ModificationID.IsAbsent())
	assert.Equal(t, "meeting", clean.Type)
	assert.Equal(t, map[string]string{"room": "A"}, clean.Extensions)
}

func TestOccurrences_WindowBounds(t *testing.T) {
	svc, _ := newService(t)
	p := mustCreateDaily(t, svc, 9)

	windows := []Query{
		{Scope: scope, Start: day(2), End: day(5)}, // start inclusive, end exclusive
		{Scope: scope, Start: day(2).Add(time.Minute), End: day(5).Add(time.Minute)},
		{Scope: scope, Start: day(-5), End: day(30)},
		{Scope: scope, Start: day(9), End: day(9).Add(time.Second)},
		{Scope: scope, Start: day(3), End: day(3)},
	}
	wantLen := []int{3, 3, 10, 1, 0}

	for i, q := range windows {
		got := query(t, svc, q)
		assert.Len(t, got, wantLen[i], "window %d", i)
		for _, v := range virtuals(got) {
			assert.False(t, v.StartTime.Before(q.Start))
			assert.True(t, v.StartTime.Before(q.End))
			assert.False(t, v.StartTime.After(p.RecurrenceEndTime))
		}
	}
}

func TestOccurrences_CancellationWinsOverModification(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	p := mustCreateDaily(t, svc, 4)

	// Inconsistent storage: both rows for day 1.
	require.NoError(t, store.CreateCancellation(ctx, &storage.Cancellation{
		ID: "c1", Scope: scope, RecurrenceID: p.ID, OriginalTime: day(1),
	}))
	require.NoError(t, store.CreateModification(ctx, &storage.Modification{
		ID: "m1", Scope: scope, RecurrenceID: p.ID, OriginalTime: day(1),
		OriginalDuration: time.Hour, StartTime: day(1).Add(2 * time.Hour), Duration: time.Hour,
	}))

	got := query(t, svc, window(0, 5))
	assert.Len(t, got, 4)
	assert.Nil(t, occurrenceAt(got, day(1)))
	for _, v := range virtuals(got) {
		assert.False(t, v.ModificationID.IsPresent())
	}
}

func TestOccurrences_MovedModifications(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 4)

	all := query(t, svc, window(0, 5))

	// Day 4 moves into day 1; day 1 moves out to day 3.
	in := occurrenceAt(all, day(4))
	in.StartTime = day(1).Add(3 * time.Hour)
	_, err := svc.Update(ctx, in)
	require.NoError(t, err)

	out := occurrenceAt(all, day(1))
	out.StartTime = day(3).Add(5 * time.Hour)
	_, err = svc.Update(ctx, out)
	require.NoError(t, err)

	got := query(t, svc, window(1, 2))
	require.Len(t, got, 1)
	v := got[0].(*VirtualEntry)
	assert.True(t, v.OriginalTime.Equal(day(4)))
	assert.True(t, v.StartTime.Equal(day(1).Add(3*time.Hour)))

	later := query(t, svc, window(3, 4))
	require.Len(t, later, 2)
	assert.True(t, later[0].Start().Equal(day(3)))
	assert.True(t, later[1].Start().Equal(day(3).Add(5*time.Hour)))
}

func TestOccurrences_StandaloneInstancesAndOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 2)

	inst, err := svc.CreateInstance(ctx, InstanceRequest{
		Scope: scope, Type: "review", StartTime: day(1).Add(-2 * time.Hour), Duration: 30 * time.Minute,
		TimeZone: "Europe/Berlin",
	})
	require.NoError(t, err)
	_, err = svc.CreateInstance(ctx, InstanceRequest{
		Scope: otherScope, Type: "review", StartTime: day(1), Duration: time.Hour,
	})
	require.NoError(t, err)

	got := query(t, svc, window(0, 3))
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Start().Before(got[i-1].Start()))
	}
	ie, ok := got[1].(*InstanceEntry)
	require.True(t, ok)
	assert.Equal(t, inst.ID, ie.ID)
	assert.Equal(t, KindInstance, ie.Kind())

	// Standalone instances overlapping the window start are included.
	q := Query{Scope: scope, Start: inst.StartTime.Add(10 * time.Minute), End: day(1).Add(-time.Hour)}
	got = query(t, svc, q)
	require.Len(t, got, 1)
	assert.Equal(t, inst.ID, got[0].(*InstanceEntry).ID)
	assert.True(t, got[0].Start().Before(q.Start))
}

func TestOccurrences_CandidateLimitFailsQuery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := recurrence.NewEngineWithConfig(recurrence.EngineConfig{MaxCandidatesPerPattern: 100})
	t.Cleanup(engine.Close)
	svc, err := New(store, WithEngine(engine))
	require.NoError(t, err)

	req := dailyRequest(0)
	req.RRule = untilRule("MINUTELY", day(1))
	_, err = svc.CreatePattern(ctx, req)
	require.NoError(t, err)

	// 90 minutes fit under the limit.
	got, err := svc.OccurrencesInRange(ctx, Query{Scope: scope, Start: day0, End: day0.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 90)

	// A full day does not and must not be truncated.
	got, err = svc.OccurrencesInRange(ctx, Query{Scope: scope, Start: day0, End: day(1)})
	require.ErrorIs(t, err, ErrTooManyCandidates)
	assert.Nil(t, got)
	var tooMany *recurrence.TooManyCandidatesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 1440, tooMany.Candidates)

	has, err := svc.HasOccurrenceInRange(ctx, Query{Scope: scope, Start: day0, End: day(1)})
	assert.ErrorIs(t, err, ErrTooManyCandidates)
	assert.False(t, has)
}

func TestOccurrences_TypeFilter(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 2)
	shift := dailyRequest(2)
	shift.Type = "shift"
	_, err := svc.CreatePattern(ctx, shift)
	require.NoError(t, err)

	q := window(0, 3)
	assert.Len(t, query(t, svc, q), 6)

	q.Types = []string{"shift"}
	got := query(t, svc, q)
	require.Len(t, got, 3)
	for _, v := range virtuals(got) {
		assert.Equal(t, "shift", v.Type)
	}

	q.Types = []string{"nothing"}
	assert.Empty(t, query(t, svc, q))
}

func TestOccurrences_ScopeIsolation(t *testing.T) {
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 2)

	q := window(0, 3)
	q.Scope = otherScope
	assert.Empty(t, query(t, svc, q))
}

func TestOccurrences_InvalidQueries(t *testing.T) {
	backend := new(storage.MockBackend)
	svc, err := New(backend)
	require.NoError(t, err)

	berlin := time.FixedZone("CET", 3600)
	tests := []struct {
		name  string
		query Query
	}{
		{"non utc start", Query{Scope: scope, Start: day(0).In(berlin), End: day(1)}},
		{"non utc end", Query{Scope: scope, Start: day(0), End: day(1).In(berlin)}},
		{"zero start", Query{Scope: scope, End: day(1)}},
		{"end before start", Query{Scope: scope, Start: day(1), End: day(0)}},
		{"empty type filter", Query{Scope: scope, Start: day(0), End: day(1), Types: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.OccurrencesInRange(context.Background(), tt.query)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	backend.AssertExpectations(t)
}

func TestOccurrences_StreamStopsEarly(t *testing.T) {
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 9)

	var seen []Entry
	for e, err := range svc.Occurrences(context.Background(), window(0, 10)) {
		require.NoError(t, err)
		seen = append(seen, e)
		if len(seen) == 2 {
			break
		}
	}
	assert.Len(t, seen, 2)
}

func TestHasOccurrenceInRange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 2)

	ok, err := svc.HasOccurrenceInRange(ctx, window(1, 2))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasOccurrenceInRange(ctx, window(5, 8))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Delete(ctx, occurrenceAt(query(t, svc, window(1, 2)), day(1))))
	ok, err = svc.HasOccurrenceInRange(ctx, window(1, 2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOccurrences_ClampThroughService(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	start := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	until := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	req := PatternRequest{
		Scope: scope, Type: "billing", StartTime: start, Duration: time.Hour,
		RRule: "FREQ=MONTHLY;BYMONTHDAY=31;UNTIL=" + until.Format("20060102T150405Z"), TimeZone: "UTC",
	}

	_, err := svc.CreatePattern(ctx, req)
	require.ErrorIs(t, err, ErrAmbiguousMonthDay)

	req.MonthDayStrategy = mo.Some(storage.MonthDayClamp)
	p, err := svc.CreatePattern(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, mo.Some(storage.MonthDayClamp), p.MonthDayStrategy)

	got := query(t, svc, Query{Scope: scope, Start: start, End: until.AddDate(0, 0, 1)})
	var days []int
	for _, e := range got {
		days = append(days, e.Start().Day())
	}
	assert.Equal(t, []int{31, 29, 31, 30}, days)

	req.MonthDayStrategy = mo.Some(storage.MonthDaySkip)
	skip, err := svc.CreatePattern(ctx, req)
	require.NoError(t, err)
	q := Query{Scope: scope, Start: start, End: until.AddDate(0, 0, 1), Types: []string{"billing"}}
	var skipped []time.Time
	for _, v := range virtuals(query(t, svc, q)) {
		if v.RecurrenceID == skip.ID {
			skipped = append(skipped, v.StartTime)
		}
	}
	assert.Equal(t, []time.Time{start, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)}, skipped)
}
