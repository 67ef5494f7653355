package occurrence

import (
	"maps"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// Kind names an Entry variant.
type Kind string

const (
	KindPattern  Kind = "pattern"
	KindInstance Kind = "instance"
	KindVirtual  Kind = "virtual"
)

// Entry is the unified query and mutation view. It is one of *PatternEntry,
// *InstanceEntry or *VirtualEntry.
type Entry interface {
	Kind() Kind
	Start() time.Time
	entry()
}

// PatternEntry is the view of a recurrence pattern.
type PatternEntry struct {
	*storage.RecurrencePattern
}

func (*PatternEntry) Kind() Kind         { return KindPattern }
func (e *PatternEntry) Start() time.Time { return e.StartTime }
func (*PatternEntry) entry()             {}

// InstanceEntry is the view of a standalone instance.
type InstanceEntry struct {
	*storage.StandaloneInstance
}

func (*InstanceEntry) Kind() Kind         { return KindInstance }
func (e *InstanceEntry) Start() time.Time { return e.StartTime }
func (*InstanceEntry) entry()             {}

// Snapshot holds the values an occurrence has when no override applies.
type Snapshot struct {
	StartTime  time.Time
	Duration   time.Duration
	Extensions map[string]string
}

// VirtualEntry is an occurrence generated by a pattern.
type VirtualEntry struct {
	RecurrenceID string
	storage.Scope

	Type string
	// OriginalTime is the instant the pattern generates for this occurrence.
	// It is the lookup key of cancellations and modifications.
	OriginalTime time.Time
	StartTime    time.Time
	Duration     time.Duration
	TimeZone     string
	Extensions   map[string]string

	// Original is present only while an override is applied.
	Original       mo.Option[Snapshot]
	ModificationID mo.Option[string]
}

func (*VirtualEntry) Kind() Kind         { return KindVirtual }
func (e *VirtualEntry) Start() time.Time { return e.StartTime }
func (*VirtualEntry) entry()             {}

// EndTime is always derived from StartTime and Duration.
func (e *VirtualEntry) EndTime() time.Time {
	return e.StartTime.Add(e.Duration)
}

// Modified reports whether a modification is applied.
func (e *VirtualEntry) Modified() bool {
	return e.ModificationID.IsPresent()
}

// key returns the generation instant addressed by e: OriginalTime, or the
// original snapshot's start when only that was supplied.
func (e *VirtualEntry) key() time.Time {
	if !e.OriginalTime.IsZero() {
		return e.OriginalTime
	}
	if o, ok := e.Original.Get(); ok {
		return o.StartTime
	}
	return time.Time{}
}

func cleanEntry(p *storage.RecurrencePattern, at time.Time) *VirtualEntry {
	return &VirtualEntry{
		RecurrenceID: p.ID,
		Scope:        p.Scope,
		Type:         p.Type,
		OriginalTime: at,
		StartTime:    at,
		Duration:     p.Duration,
		TimeZone:     p.TimeZone,
		Extensions:   storage.CloneExtensions(p.Extensions),
	}
}

func modifiedEntry(p *storage.RecurrencePattern, m *storage.Modification) *VirtualEntry {
	return &VirtualEntry{
		RecurrenceID: p.ID,
		Scope:        p.Scope,
		Type:         p.Type,
		OriginalTime: m.OriginalTime,
		StartTime:    m.StartTime,
		Duration:     m.Duration,
		TimeZone:     p.TimeZone,
		Extensions:   storage.CloneExtensions(m.Extensions),
		Original: mo.Some(Snapshot{
			StartTime:  m.OriginalTime,
			Duration:   m.OriginalDuration,
			Extensions: storage.CloneExtensions(m.OriginalExtensions),
		}),
		ModificationID: mo.Some(m.ID),
	}
}

// Clean returns the entry the pattern alone would produce for a modified
// virtualized occurrence, built from its original snapshot.
func (e *VirtualEntry) Clean() *VirtualEntry {
	o, ok := e.Original.Get()
	if !ok {
		c := *e
		c.Extensions = maps.Clone(e.Extensions)
		return &c
	}
	return &VirtualEntry{
		RecurrenceID: e.RecurrenceID,
		Scope:        e.Scope,
		Type:         e.Type,
		OriginalTime: e.OriginalTime,
		StartTime:    o.StartTime,
		Duration:     o.Duration,
		TimeZone:     e.TimeZone,
		Extensions:   storage.CloneExtensions(o.Extensions),
	}
}
