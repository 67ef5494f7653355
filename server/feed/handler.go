// Package feed serves occurrence windows over HTTP as iCalendar, xCal or
// JSON. Paths name the scope: /{organization}/{resource path...}.
//
//	GET /acme/rooms/1?from=2024-01-01T00:00:00Z&to=2024-02-01T00:00:00Z&format=ics
package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cyp0633/caldora-recur/internal/calexport"
	"github.com/cyp0633/caldora-recur/server/occurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
)

// Querier answers window queries; *occurrence.Service implements it.
type Querier interface {
	OccurrencesInRange(ctx context.Context, q occurrence.Query) ([]occurrence.Entry, error)
}

// Handler is the HTTP handler of the feed. Mount it under a prefix with
// http.StripPrefix.
type Handler struct {
	service Querier
	logger  *slog.Logger
	now     func() time.Time
	// maxWindow rejects wider windows; zero means unlimited.
	maxWindow time.Duration
}

// Option represents a configuration option for the Handler
type Option func(*Handler)

// WithLogger sets the logger for the handler
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxWindow bounds the span a single request may ask for.
func WithMaxWindow(d time.Duration) Option {
	return func(h *Handler) { h.maxWindow = d }
}

// WithClock replaces time.Now as the source of DTSTAMP values.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a feed over service.
func NewHandler(service Querier, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// request is a parsed feed request.
type request struct {
	query  occurrence.Query
	format string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.parse(r)
	if err != nil {
		h.logger.Debug("rejecting feed request", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.service.OccurrencesInRange(r.Context(), req.query)
	if err != nil {
		if errors.Is(err, occurrence.ErrValidation) || errors.Is(err, occurrence.ErrTooManyCandidates) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("feed query failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	etag, err := entityTag(req.format, entries)
	if err != nil {
		h.logger.Error("failed to compute etag", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	var buf bytes.Buffer
	var contentType string
	switch req.format {
	case "xcal":
		contentType = "application/calendar+xml; charset=utf-8"
		err = calexport.WriteXCal(&buf, entries, h.now())
	case "json":
		contentType = "application/json"
		err = calexport.WriteJSON(&buf, entries)
	default:
		contentType = "text/calendar; charset=utf-8"
		err = calexport.WriteICS(&buf, entries, h.now())
	}
	if err != nil {
		h.logger.Error("failed to encode feed", "format", req.format, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("feed served", "organization", req.query.Organization,
		"resource_path", req.query.ResourcePath, "entries", len(entries), "format", req.format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

func (h *Handler) parse(r *http.Request) (*request, error) {
	org, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if org == "" {
		return nil, fmt.Errorf("path must start with an organization")
	}
	scope := storage.Scope{Organization: org}
	if rest = strings.TrimSuffix(rest, "/"); rest != "" {
		scope.ResourcePath = "/" + rest
	}

	params := r.URL.Query()
	start, err := instant(params.Get("from"), "from")
	if err != nil {
		return nil, err
	}
	end, err := instant(params.Get("to"), "to")
	if err != nil {
		return nil, err
	}
	if h.maxWindow > 0 && end.Sub(start) > h.maxWindow {
		return nil, fmt.Errorf("window longer than %s", h.maxWindow)
	}

	format := params.Get("format")
	switch format {
	case "":
		format = "ics"
	case "ics", "xcal", "json":
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	q := occurrence.Query{Scope: scope, Start: start, End: end}
	if types, ok := params["type"]; ok {
		q.Types = types
	}
	return &request{query: q, format: format}, nil
}

func instant(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing %s parameter", name)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s parameter: %w", name, err)
	}
	return t.UTC(), nil
}

// entityTag hashes the format and the JSON form of entries, so it does not
// depend on DTSTAMP values.
func entityTag(format string, entries []occurrence.Entry) (string, error) {
	sum := sha256.New()
	_, _ = io.WriteString(sum, format)
	if err := calexport.WriteJSON(sum, entries); err != nil {
		return "", err
	}
	return `"` + hex.EncodeToString(sum.Sum(nil)[:16]) + `"`, nil
}
