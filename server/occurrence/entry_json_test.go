package occurrence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryJSON_VirtualCarriesOverride(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 4)

	e := occurrenceAt(query(t, svc, window(0, 5)), day(2))
	e.StartTime = day(2).Add(time.Hour)
	e.Extensions = map[string]string{"room": "B"}
	modified, err := svc.Update(ctx, e)
	require.NoError(t, err)

	data, err := MarshalEntry(modified)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "virtual", raw["kind"])
	assert.Equal(t, "2024-01-03T10:00:00Z", raw["start_time"])
	assert.Equal(t, "2024-01-03T11:00:00Z", raw["end_time"])
	assert.Equal(t, "2024-01-03T09:00:00Z", raw["original_time"])
	assert.Equal(t, "1h0m0s", raw["duration"])
	assert.Contains(t, raw, "modification_id")
	assert.Contains(t, raw, "original")

	decoded, err := UnmarshalEntry(data)
	require.NoError(t, err)
	v := decoded.(*VirtualEntry)
	assert.True(t, v.Modified())
	assert.Equal(t, modified.(*VirtualEntry).ModificationID, v.ModificationID)
	assert.Equal(t, map[string]string{"room": "A"}, v.Original.MustGet().Extensions)

	// A decoded entry is as good as the one the service returned.
	require.NoError(t, svc.Restore(ctx, v))
	restored := occurrenceAt(query(t, svc, window(0, 5)), day(2))
	assert.False(t, restored.Modified())
}

func TestEntryJSON_CleanVirtualOmitsOverride(t *testing.T) {
	svc, _ := newService(t)
	mustCreateDaily(t, svc, 4)
	e := occurrenceAt(query(t, svc, window(0, 5)), day(1))

	data, err := MarshalEntry(e)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "modification_id")
	assert.NotContains(t, raw, "original")

	decoded, err := UnmarshalEntry(data)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), decoded))
	assert.Nil(t, occurrenceAt(query(t, svc, window(0, 5)), day(1)))
}

func TestEntryJSON_PatternAndInstance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	p := mustCreateDaily(t, svc, 4)
	i, err := svc.CreateInstance(ctx, InstanceRequest{Scope: scope, Type: "x", StartTime: day0, Duration: 30 * time.Minute, TimeZone: "Europe/Berlin"})
	require.NoError(t, err)

	data, err := MarshalEntry(p)
	require.NoError(t, err)
	decoded, err := UnmarshalEntry(data)
	require.NoError(t, err)
	dp := decoded.(*PatternEntry)
	assert.Equal(t, p.ID, dp.ID)
	assert.Equal(t, p.RRule, dp.RRule)
	assert.Equal(t, scope, dp.Scope)
	assert.True(t, dp.RecurrenceEndTime.Equal(day(4)))
	assert.True(t, dp.MonthDayStrategy.IsAbsent())

	// Pattern updates through the wire form keep every immutable field intact.
	dp.Duration = 2 * time.Hour
	_, err = svc.Update(ctx, dp)
	require.NoError(t, err)

	data, err = MarshalEntry(i)
	require.NoError(t, err)
	decoded, err = UnmarshalEntry(data)
	require.NoError(t, err)
	di := decoded.(*InstanceEntry)
	assert.Equal(t, KindInstance, di.Kind())
	assert.Equal(t, "Europe/Berlin", di.TimeZone)
	assert.Equal(t, 30*time.Minute, di.Duration)
}

func TestEntryJSON_Errors(t *testing.T) {
	_, err := MarshalEntry(nil)
	assert.ErrorIs(t, err, ErrIndeterminateEntry)

	_, err = UnmarshalEntry([]byte(`{"kind":"meteor","duration":"1h"}`))
	assert.ErrorIs(t, err, ErrIndeterminateEntry)

	_, err = UnmarshalEntry([]byte(`{"kind":"instance","duration":"forever"}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "duration", ve.Field)

	_, err = UnmarshalEntry([]byte(`{"kind":"virtual","duration":"1h","original":{"duration":"x"}}`))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "original.duration", ve.Field)

	_, err = UnmarshalEntry([]byte(`not json`))
	assert.ErrorIs(t, err, ErrValidation)
}
