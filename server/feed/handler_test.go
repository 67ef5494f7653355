package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/auth"
	authmem "github.com/cyp0633/caldora-recur/server/auth/memory"
	"github.com/cyp0633/caldora-recur/server/occurrence"
	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
	"github.com/cyp0633/caldora-recur/server/storage/memory"
)

var (
	day0  = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	stamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newFeed(t *testing.T) (*Handler, *occurrence.Service) {
	t.Helper()
	svc, err := occurrence.New(memory.New())
	require.NoError(t, err)
	_, err = svc.CreatePattern(context.Background(), occurrence.PatternRequest{
		Scope:     storage.Scope{Organization: "acme", ResourcePath: "/rooms/1"},
		Type:      "standup",
		StartTime: day0,
		Duration:  15 * time.Minute,
		RRule:     "FREQ=DAILY;UNTIL=20240103T090000Z",
		TimeZone:  "UTC",
	})
	require.NoError(t, err)
	return NewHandler(svc, WithClock(func() time.Time { return stamp }), WithMaxWindow(366*24*time.Hour)), svc
}

const window = "from=2024-01-01T00:00:00Z&to=2024-01-10T00:00:00Z"

func get(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Formats(t *testing.T) {
	h, _ := newFeed(t)

	rec := get(h, "/acme/rooms/1?"+window, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "RECURRENCE-ID")
	assert.Contains(t, rec.Body.String(), "20240102T090000Z")
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	rec = get(h, "/acme/rooms/1?format=json&"+window, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []occurrence.EntryJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)

	rec = get(h, "/acme/rooms/1?format=xcal&"+window, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<icalendar")

	rec = get(h, "/acme/rooms/1?format=json&type=other&"+window, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = get(h, "/globex/rooms/1?format=json&"+window, nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandler_ETag(t *testing.T) {
	h, svc := newFeed(t)
	first := get(h, "/acme/rooms/1?"+window, nil)
	etag := first.Header().Get("ETag")

	rec := get(h, "/acme/rooms/1?"+window, http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	asJSON := get(h, "/acme/rooms/1?format=json&"+window, nil)
	assert.NotEqual(t, etag, asJSON.Header().Get("ETag"))

	entries, err := svc.OccurrencesInRange(context.Background(), occurrence.Query{
		Scope: storage.Scope{Organization: "acme", ResourcePath: "/rooms/1"},
		Start: day0, End: day0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), entries[0]))

	rec = get(h, "/acme/rooms/1?"+window, http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestHandler_BadRequests(t *testing.T) {
	h, _ := newFeed(t)
	tests := map[string]string{
		"no organization": "/?" + window,
		"missing from":    "/acme/rooms/1?to=2024-01-10T00:00:00Z",
		"bad to":          "/acme/rooms/1?from=2024-01-01T00:00:00Z&to=tomorrow",
		"unknown format":  "/acme/rooms/1?format=csv&" + window,
		"reversed window": "/acme/rooms/1?from=2024-01-10T00:00:00Z&to=2024-01-01T00:00:00Z",
		"window too wide": "/acme/rooms/1?from=2020-01-01T00:00:00Z&to=2024-01-01T00:00:00Z",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, get(h, target, nil).Code)
		})
	}
}

type failingQuerier struct{}

func (failingQuerier) OccurrencesInRange(context.Context, occurrence.Query) ([]occurrence.Entry, error) {
	return nil, errors.New("storage down")
}

func TestHandler_CandidateLimit(t *testing.T) {
	engine := recurrence.NewEngineWithConfig(recurrence.EngineConfig{MaxCandidatesPerPattern: 2})
	t.Cleanup(engine.Close)
	svc, err := occurrence.New(memory.New(), occurrence.WithEngine(engine))
	require.NoError(t, err)
	_, err = svc.CreatePattern(context.Background(), occurrence.PatternRequest{
		Scope:     storage.Scope{Organization: "acme"},
		Type:      "standup",
		StartTime: day0,
		Duration:  15 * time.Minute,
		RRule:     "FREQ=DAILY;UNTIL=20240103T090000Z",
		TimeZone:  "UTC",
	})
	require.NoError(t, err)
	h := NewHandler(svc)

	assert.Equal(t, http.StatusOK, get(h, "/acme?from=2024-01-01T00:00:00Z&to=2024-01-03T00:00:00Z", nil).Code)
	rec := get(h, "/acme?"+window, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "narrow the window")
}

func TestHandler_StorageFailure(t *testing.T) {
	h := NewHandler(failingQuerier{})
	rec := get(h, "/acme?"+window, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "storage down")
}

func TestHandler_MethodsAndHealth(t *testing.T) {
	h, _ := newFeed(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/acme?"+window, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/acme/rooms/1?"+window, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))

	assert.Equal(t, http.StatusOK, get(h, "/healthz", nil).Code)
}

func TestHandler_WithAuth(t *testing.T) {
	h, _ := newFeed(t)
	users := authmem.New()
	require.NoError(t, users.AddUser("alice", "secret", "acme"))
	require.NoError(t, users.AddUser("root", "toor", "*"))
	protected := auth.Middleware(users, "test")(h)

	basic := func(user, pass string) http.Header {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth(user, pass)
		return req.Header
	}

	rec := get(protected, "/acme/rooms/1?"+window, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="test"`, rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, get(protected, "/acme/rooms/1?"+window, basic("alice", "wrong")).Code)
	assert.Equal(t, http.StatusOK, get(protected, "/acme/rooms/1?"+window, basic("alice", "secret")).Code)
	assert.Equal(t, http.StatusForbidden, get(protected, "/globex/rooms/1?"+window, basic("alice", "secret")).Code)
	assert.Equal(t, http.StatusOK, get(protected, "/globex/rooms/1?"+window, basic("root", "toor")).Code)
	assert.Equal(t, http.StatusOK, get(protected, "/healthz", nil).Code)
}
