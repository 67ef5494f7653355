package occurrence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// EntryJSON is the wire form of an Entry. Kind selects the variant; ID is the
// pattern or instance identity.
type EntryJSON struct {
	Kind           Kind              `json:"kind"`
	ID             string            `json:"id,omitempty"`
	RecurrenceID   string            `json:"recurrence_id,omitempty"`
	ModificationID *string           `json:"modification_id,omitempty"`
	Organization   string            `json:"organization"`
	ResourcePath   string            `json:"resource_path"`
	Type           string            `json:"type"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	Duration       string            `json:"duration"`
	TimeZone       string            `json:"time_zone,omitempty"`
	Extensions     map[string]string `json:"extensions"`
	OriginalTime   *time.Time        `json:"original_time,omitempty"`
	Original       *SnapshotJSON     `json:"original,omitempty"`

	RRule             string     `json:"rrule,omitempty"`
	RecurrenceEndTime *time.Time `json:"recurrence_end_time,omitempty"`
	MonthDayStrategy  *string    `json:"month_day_strategy,omitempty"`
}

// SnapshotJSON is the wire form of a Snapshot.
type SnapshotJSON struct {
	StartTime  time.Time         `json:"start_time"`
	Duration   string            `json:"duration"`
	Extensions map[string]string `json:"extensions"`
}

// ToJSON converts an entry to its wire form.
func ToJSON(e Entry) EntryJSON {
	switch v := e.(type) {
	case *PatternEntry:
		until := v.RecurrenceEndTime
		out := EntryJSON{
			Kind: KindPattern, ID: v.ID,
			Organization: v.Organization, ResourcePath: v.ResourcePath, Type: v.Type,
			StartTime: v.StartTime, EndTime: v.StartTime.Add(v.Duration), Duration: v.Duration.String(),
			TimeZone: v.TimeZone, Extensions: v.Extensions,
			RRule: v.RRule, RecurrenceEndTime: &until,
		}
		if st, ok := v.MonthDayStrategy.Get(); ok {
			s := string(st)
			out.MonthDayStrategy = &s
		}
		return out
	case *InstanceEntry:
		return EntryJSON{
			Kind: KindInstance, ID: v.ID,
			Organization: v.Organization, ResourcePath: v.ResourcePath, Type: v.Type,
			StartTime: v.StartTime, EndTime: v.EndTime(), Duration: v.Duration.String(),
			TimeZone: v.TimeZone, Extensions: v.Extensions,
		}
	case *VirtualEntry:
		orig := v.OriginalTime
		out := EntryJSON{
			Kind: KindVirtual, RecurrenceID: v.RecurrenceID,
			Organization: v.Organization, ResourcePath: v.ResourcePath, Type: v.Type,
			StartTime: v.StartTime, EndTime: v.EndTime(), Duration: v.Duration.String(),
			TimeZone: v.TimeZone, Extensions: v.Extensions, OriginalTime: &orig,
		}
		if id, ok := v.ModificationID.Get(); ok {
			out.ModificationID = &id
		}
		if o, ok := v.Original.Get(); ok {
			out.Original = &SnapshotJSON{StartTime: o.StartTime, Duration: o.Duration.String(), Extensions: o.Extensions}
		}
		return out
	}
	return EntryJSON{}
}

// Entry converts the wire form back into an Entry.
func (j EntryJSON) Entry() (Entry, error) {
	dur, err := parseDuration("duration", j.Duration)
	if err != nil {
		return nil, err
	}
	scope := storage.Scope{Organization: j.Organization, ResourcePath: j.ResourcePath}

	switch j.Kind {
	case KindPattern:
		p := &storage.RecurrencePattern{
			ID: j.ID, Scope: scope, Type: j.Type, StartTime: j.StartTime, Duration: dur,
			RRule: j.RRule, TimeZone: j.TimeZone, Extensions: j.Extensions,
		}
		if j.RecurrenceEndTime != nil {
			p.RecurrenceEndTime = *j.RecurrenceEndTime
		}
		if j.MonthDayStrategy != nil {
			p.MonthDayStrategy = mo.Some(storage.MonthDayStrategy(*j.MonthDayStrategy))
		}
		return &PatternEntry{p}, nil
	case KindInstance:
		return &InstanceEntry{&storage.StandaloneInstance{
			ID: j.ID, Scope: scope, Type: j.Type, StartTime: j.StartTime, Duration: dur,
			TimeZone: j.TimeZone, Extensions: j.Extensions,
		}}, nil
	case KindVirtual:
		v := &VirtualEntry{
			RecurrenceID: j.RecurrenceID, Scope: scope, Type: j.Type,
			StartTime: j.StartTime, Duration: dur, TimeZone: j.TimeZone, Extensions: j.Extensions,
		}
		if j.OriginalTime != nil {
			v.OriginalTime = *j.OriginalTime
		}
		if j.ModificationID != nil {
			v.ModificationID = mo.Some(*j.ModificationID)
		}
		if j.Original != nil {
			odur, err := parseDuration("original.duration", j.Original.Duration)
			if err != nil {
				return nil, err
			}
			v.Original = mo.Some(Snapshot{StartTime: j.Original.StartTime, Duration: odur, Extensions: j.Original.Extensions})
		}
		return v, nil
	}
	return nil, indeterminate("unknown kind %q", j.Kind)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: err.Error(), Err: err}
	}
	return d, nil
}

// MarshalEntry encodes e as JSON.
func MarshalEntry(e Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal entry: %w", ErrIndeterminateEntry)
	}
	return json.Marshal(ToJSON(e))
}

// UnmarshalEntry decodes an entry previously produced by MarshalEntry.
func UnmarshalEntry(data []byte) (Entry, error) {
	var j EntryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &ValidationError{Field: "entry", Reason: err.Error(), Err: err}
	}
	return j.Entry()
}
