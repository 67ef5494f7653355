// Package storagetest holds a conformance suite every storage.Backend
// implementation runs from its own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

var (
	scope      = storage.Scope{Organization: "acme", ResourcePath: "/rooms/1"}
	otherScope = storage.Scope{Organization: "globex", ResourcePath: "/rooms/1"}
	base       = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

// Run executes the full suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"PatternCRUD", testPatternCRUD},
		{"PatternRange", testPatternRange},
		{"InstanceCRUD", testInstanceCRUD},
		{"InstanceRange", testInstanceRange},
		{"Cancellations", testCancellations},
		{"Modifications", testModifications},
		{"ModificationUniqueKey", testModificationUniqueKey},
		{"ModificationsInRange", testModificationsInRange},
		{"CascadeDelete", testCascadeDelete},
		{"TxRollback", testTxRollback},
		{"TxCommit", testTxCommit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			defer func() { assert.NoError(t, b.Close()) }()
			tt.fn(t, b)
		})
	}
}

func newPattern(id string, days int) *storage.RecurrencePattern {
	p := storage.NewMockPattern(id, scope, base, days, time.Hour)
	p.Extensions = map[string]string{"title": "standup"}
	return p
}

func testPatternCRUD(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	p := newPattern("p1", 5)
	p.MonthDayStrategy = mo.Some(storage.MonthDayClamp)
	require.NoError(t, b.CreatePattern(ctx, p))

	err := b.CreatePattern(ctx, newPattern("p1", 5))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := b.GetPattern(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Equal(t, "meeting", got.Type)
	assert.True(t, got.StartTime.Equal(base))
	assert.True(t, got.RecurrenceEndTime.Equal(p.RecurrenceEndTime))
	assert.Equal(t, p.RRule, got.RRule)
	assert.Equal(t, time.Hour, got.Duration)
	assert.Equal(t, "standup", got.Extensions["title"])
	assert.Equal(t, storage.MonthDayClamp, got.MonthDayStrategy.OrEmpty())

	_, err = b.GetPattern(ctx, "p1", otherScope)
	assert.ErrorIs(t, err, storage.ErrNotFound, "scope must isolate patterns")

	got.Duration = 2 * time.Hour
	got.Extensions = map[string]string{"title": "retro"}
	got.Type = "ignored"
	got.RRule = "FREQ=WEEKLY"
	require.NoError(t, b.UpdatePattern(ctx, got))

	again, err := b.GetPattern(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, again.Duration)
	assert.Equal(t, "retro", again.Extensions["title"])
	assert.Equal(t, "meeting", again.Type, "update persists only mutable fields")
	assert.Equal(t, p.RRule, again.RRule)

	require.NoError(t, b.DeletePattern(ctx, "p1", scope))
	_, err = b.GetPattern(ctx, "p1", scope)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, b.DeletePattern(ctx, "p1", scope), storage.ErrNotFound)
}

func testPatternRange(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	early := newPattern("early", 2) // Jan 1 - Jan 3
	late := newPattern("late", 3)
	late.StartTime = base.AddDate(0, 0, 10) // Jan 11 - Jan 14
	late.RecurrenceEndTime = late.StartTime.AddDate(0, 0, 3)
	late.Type = "shift"
	foreign := newPattern("foreign", 30)
	foreign.Scope = otherScope
	for _, p := range []*storage.RecurrencePattern{early, late, foreign} {
		require.NoError(t, b.CreatePattern(ctx, p))
	}

	ids := func(ps []*storage.RecurrencePattern) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	got, err := b.ListPatternsInRange(ctx, storage.RangeQuery{Scope: scope, Start: base, End: base.AddDate(0, 1, 0)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"early", "late"}, ids(got))

	got, err = b.ListPatternsInRange(ctx, storage.RangeQuery{Scope: scope, Start: base.AddDate(0, 0, 5), End: base.AddDate(0, 0, 8)})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = b.ListPatternsInRange(ctx, storage.RangeQuery{Scope: scope, Start: base, End: base.AddDate(0, 1, 0), Types: []string{"shift"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, ids(got))
}

func testInstanceCRUD(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	i := &storage.StandaloneInstance{
		ID: "i1", Scope: scope, Type: "meeting",
		StartTime: base, Duration: 30 * time.Minute, TimeZone: "Europe/Berlin",
		Extensions: map[string]string{"room": "A"},
	}
	require.NoError(t, b.CreateInstance(ctx, i))
	assert.ErrorIs(t, b.CreateInstance(ctx, i), storage.ErrAlreadyExists)

	got, err := b.GetInstance(ctx, "i1", scope)
	require.NoError(t, err)
	assert.True(t, got.EndTime().Equal(base.Add(30*time.Minute)))
	assert.Equal(t, "Europe/Berlin", got.TimeZone)
	assert.Equal(t, "A", got.Extensions["room"])

	got.StartTime = base.Add(time.Hour)
	got.Duration = time.Hour
	require.NoError(t, b.UpdateInstance(ctx, got))
	again, err := b.GetInstance(ctx, "i1", scope)
	require.NoError(t, err)
	assert.True(t, again.EndTime().Equal(base.Add(2*time.Hour)))

	_, err = b.GetInstance(ctx, "i1", otherScope)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.DeleteInstance(ctx, "i1", scope))
	assert.ErrorIs(t, b.DeleteInstance(ctx, "i1", scope), storage.ErrNotFound)
	missing := &storage.StandaloneInstance{ID: "nope", Scope: scope, Type: "x", StartTime: base, Duration: time.Hour}
	assert.ErrorIs(t, b.UpdateInstance(ctx, missing), storage.ErrNotFound)
}

func testInstanceRange(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	mk := func(id string, offset time.Duration, typ string) *storage.StandaloneInstance {
		return &storage.StandaloneInstance{ID: id, Scope: scope, Type: typ, StartTime: base.Add(offset), Duration: time.Hour, TimeZone: "UTC"}
	}
	for _, i := range []*storage.StandaloneInstance{
		mk("before", -time.Hour, "meeting"), // ends exactly at base
		mk("inside", time.Hour, "meeting"),
		mk("straddle", -30*time.Minute, "shift"),
		mk("after", 5*time.Hour, "meeting"),
	} {
		require.NoError(t, b.CreateInstance(ctx, i))
	}

	got, err := b.ListInstancesInRange(ctx, storage.RangeQuery{Scope: scope, Start: base, End: base.Add(4 * time.Hour)})
	require.NoError(t, err)
	var ids []string
	for _, i := range got {
		ids = append(ids, i.ID)
	}
	assert.ElementsMatch(t, []string{"inside", "straddle"}, ids)

	got, err = b.ListInstancesInRange(ctx, storage.RangeQuery{Scope: scope, Start: base, End: base.Add(4 * time.Hour), Types: []string{"shift"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "straddle", got[0].ID)
}

func testCancellations(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))

	c := &storage.Cancellation{ID: "c1", Scope: scope, RecurrenceID: "p1", OriginalTime: base.AddDate(0, 0, 2)}
	require.NoError(t, b.CreateCancellation(ctx, c))

	orphan := &storage.Cancellation{ID: "c2", Scope: scope, RecurrenceID: "missing", OriginalTime: base}
	assert.ErrorIs(t, b.CreateCancellation(ctx, orphan), storage.ErrNotFound)

	got, err := b.GetCancellation(ctx, "c1", scope)
	require.NoError(t, err)
	assert.True(t, got.OriginalTime.Equal(base.AddDate(0, 0, 2)))

	list, err := b.ListCancellations(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, b.DeleteCancellation(ctx, "c1", scope))
	_, err = b.GetCancellation(ctx, "c1", scope)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.CreateCancellation(ctx, &storage.Cancellation{ID: "c3", Scope: scope, RecurrenceID: "p1", OriginalTime: base}))
	require.NoError(t, b.DeleteCancellationsByPattern(ctx, "p1", scope))
	list, err = b.ListCancellations(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func newModification(id string, day int) *storage.Modification {
	orig := base.AddDate(0, 0, day)
	return &storage.Modification{
		ID: id, Scope: scope, RecurrenceID: "p1",
		OriginalTime: orig, OriginalDuration: time.Hour,
		OriginalExtensions: map[string]string{"title": "standup"},
		StartTime:          orig.Add(2 * time.Hour), Duration: 2 * time.Hour,
		Extensions: map[string]string{"title": "moved"},
	}
}

func testModifications(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))
	require.NoError(t, b.CreateModification(ctx, newModification("m1", 1)))

	got, err := b.GetModification(ctx, "m1", scope)
	require.NoError(t, err)
	assert.True(t, got.OriginalTime.Equal(base.AddDate(0, 0, 1)))
	assert.Equal(t, time.Hour, got.OriginalDuration)
	assert.Equal(t, "standup", got.OriginalExtensions["title"])
	assert.Equal(t, "moved", got.Extensions["title"])
	assert.True(t, got.EndTime().Equal(got.StartTime.Add(2*time.Hour)))

	got.StartTime = got.StartTime.Add(time.Hour)
	got.Duration = 30 * time.Minute
	got.Extensions = map[string]string{"title": "moved again"}
	got.OriginalTime = base // must be ignored
	require.NoError(t, b.UpdateModification(ctx, got))

	again, err := b.GetModification(ctx, "m1", scope)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, again.Duration)
	assert.Equal(t, "moved again", again.Extensions["title"])
	assert.True(t, again.OriginalTime.Equal(base.AddDate(0, 0, 1)), "original time is immutable")

	list, err := b.ListModifications(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, b.DeleteModification(ctx, "m1", scope))
	assert.ErrorIs(t, b.DeleteModification(ctx, "m1", scope), storage.ErrNotFound)
	assert.ErrorIs(t, b.UpdateModification(ctx, newModification("m1", 1)), storage.ErrNotFound)

	require.NoError(t, b.CreateModification(ctx, newModification("m2", 2)))
	require.NoError(t, b.DeleteModificationsByPattern(ctx, "p1", scope))
	list, err = b.ListModifications(ctx, "p1", scope)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testModificationUniqueKey(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))
	require.NoError(t, b.CreateModification(ctx, newModification("m1", 1)))

	err := b.CreateModification(ctx, newModification("m2", 1))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func testModificationsInRange(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 10)))
	inside := newModification("inside", 1)
	movedIn := newModification("moved-in", 8)
	movedIn.StartTime = base.AddDate(0, 0, 2)
	far := newModification("far", 9)
	for _, m := range []*storage.Modification{inside, movedIn, far} {
		require.NoError(t, b.CreateModification(ctx, m))
	}

	got, err := b.ListModificationsInRange(ctx, scope, []string{"p1"}, base, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"inside", "moved-in"}, ids)

	got, err = b.ListModificationsInRange(ctx, scope, []string{"other"}, base, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testCascadeDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))
	require.NoError(t, b.CreateCancellation(ctx, &storage.Cancellation{ID: "c1", Scope: scope, RecurrenceID: "p1", OriginalTime: base}))
	require.NoError(t, b.CreateModification(ctx, newModification("m1", 1)))

	require.NoError(t, b.DeletePattern(ctx, "p1", scope))

	_, err := b.GetCancellation(ctx, "c1", scope)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = b.GetModification(ctx, "m1", scope)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

var errBoom = errors.New("boom")

func testTxRollback(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))
	require.NoError(t, b.CreateModification(ctx, newModification("m1", 1)))

	err := b.InTx(ctx, func(repo storage.Repository) error {
		if err := repo.DeleteModification(ctx, "m1", scope); err != nil {
			return err
		}
		if err := repo.CreateCancellation(ctx, &storage.Cancellation{ID: "c1", Scope: scope, RecurrenceID: "p1", OriginalTime: base.AddDate(0, 0, 1)}); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	_, err = b.GetModification(ctx, "m1", scope)
	assert.NoError(t, err, "modification delete must be rolled back")
	_, err = b.GetCancellation(ctx, "c1", scope)
	assert.ErrorIs(t, err, storage.ErrNotFound, "cancellation create must be rolled back")
}

func testTxCommit(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreatePattern(ctx, newPattern("p1", 5)))

	err := b.InTx(ctx, func(repo storage.Repository) error {
		if _, err := repo.GetPattern(ctx, "p1", scope); err != nil {
			return err
		}
		return repo.CreateModification(ctx, newModification("m1", 1))
	})
	require.NoError(t, err)

	_, err = b.GetModification(ctx, "m1", scope)
	assert.NoError(t, err)
}
