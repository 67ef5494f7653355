package occurrence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/storage"
	"github.com/cyp0633/caldora-recur/server/storage/memory"
)

var (
	scope      = storage.Scope{Organization: "acme", ResourcePath: "/rooms/1"}
	otherScope = storage.Scope{Organization: "globex", ResourcePath: "/rooms/1"}
	day0       = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func untilRule(freq string, until time.Time) string {
	return "FREQ=" + freq + ";UNTIL=" + until.UTC().Format("20060102T150405Z")
}

// dailyRequest generates one hour at 09:00 UTC on days 0..last.
func dailyRequest(last int) PatternRequest {
	return PatternRequest{
		Scope:      scope,
		Type:       "meeting",
		StartTime:  day0,
		Duration:   time.Hour,
		RRule:      untilRule("DAILY", day(last)),
		TimeZone:   "UTC",
		Extensions: map[string]string{"room": "A"},
	}
}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc, err := New(store)
	require.NoError(t, err)
	return svc, store
}

func window(from, to int) Query {
	return Query{Scope: scope, Start: day(from).Add(-9 * time.Hour), End: day(to).Add(-9 * time.Hour)}
}

func query(t *testing.T, svc *Service, q Query) []Entry {
	t.Helper()
	entries, err := svc.OccurrencesInRange(context.Background(), q)
	require.NoError(t, err)
	return entries
}

func virtuals(entries []Entry) []*VirtualEntry {
	var out []*VirtualEntry
	for _, e := range entries {
		if v, ok := e.(*VirtualEntry); ok {
			out = append(out, v)
		}
	}
	return out
}

// occurrenceAt returns the virtualized entry keyed at original, or nil.
func occurrenceAt(entries []Entry, original time.Time) *VirtualEntry {
	for _, v := range virtuals(entries) {
		if v.OriginalTime.Equal(original) {
			return v
		}
	}
	return nil
}

func mustCreateDaily(t *testing.T, svc *Service, last int) *PatternEntry {
	t.Helper()
	p, err := svc.CreatePattern(context.Background(), dailyRequest(last))
	require.NoError(t, err)
	return p
}
