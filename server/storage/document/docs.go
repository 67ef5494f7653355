package document

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

type patternDoc struct {
	ID                string            `json:"id"`
	Organization      string            `json:"organization"`
	ResourcePath      string            `json:"resource_path"`
	Type              string            `json:"type"`
	StartTime         time.Time         `json:"start_time"`
	Duration          time.Duration     `json:"duration"`
	RecurrenceEndTime time.Time         `json:"recurrence_end_time"`
	RRule             string            `json:"rrule"`
	TimeZone          string            `json:"time_zone"`
	Extensions        map[string]string `json:"extensions"`
	MonthDayStrategy  *string           `json:"month_day_strategy,omitempty"`
	Created           time.Time         `json:"created"`
	Modified          time.Time         `json:"modified"`
}

func toPatternDoc(p *storage.RecurrencePattern) patternDoc {
	d := patternDoc{
		ID: p.ID, Organization: p.Organization, ResourcePath: p.ResourcePath, Type: p.Type,
		StartTime: p.StartTime.UTC(), Duration: p.Duration, RecurrenceEndTime: p.RecurrenceEndTime.UTC(),
		RRule: p.RRule, TimeZone: p.TimeZone, Extensions: storage.CloneExtensions(p.Extensions),
		Created: p.Created, Modified: p.Modified,
	}
	if s, ok := p.MonthDayStrategy.Get(); ok {
		str := string(s)
		d.MonthDayStrategy = &str
	}
	return d
}

func (d patternDoc) model() *storage.RecurrencePattern {
	p := &storage.RecurrencePattern{
		ID: d.ID, Scope: storage.Scope{Organization: d.Organization, ResourcePath: d.ResourcePath},
		Type: d.Type, StartTime: d.StartTime.UTC(), Duration: d.Duration,
		RecurrenceEndTime: d.RecurrenceEndTime.UTC(), RRule: d.RRule, TimeZone: d.TimeZone,
		Extensions: storage.CloneExtensions(d.Extensions), Created: d.Created, Modified: d.Modified,
	}
	if d.MonthDayStrategy != nil {
		p.MonthDayStrategy = mo.Some(storage.MonthDayStrategy(*d.MonthDayStrategy))
	}
	return p
}

type instanceDoc struct {
	ID           string            `json:"id"`
	Organization string            `json:"organization"`
	ResourcePath string            `json:"resource_path"`
	Type         string            `json:"type"`
	StartTime    time.Time         `json:"start_time"`
	Duration     time.Duration     `json:"duration"`
	TimeZone     string            `json:"time_zone"`
	Extensions   map[string]string `json:"extensions"`
	Created      time.Time         `json:"created"`
	Modified     time.Time         `json:"modified"`
}

func toInstanceDoc(i *storage.StandaloneInstance) instanceDoc {
	return instanceDoc{
		ID: i.ID, Organization: i.Organization, ResourcePath: i.ResourcePath, Type: i.Type,
		StartTime: i.StartTime.UTC(), Duration: i.Duration, TimeZone: i.TimeZone,
		Extensions: storage.CloneExtensions(i.Extensions), Created: i.Created, Modified: i.Modified,
	}
}

func (d instanceDoc) model() *storage.StandaloneInstance {
	return &storage.StandaloneInstance{
		ID: d.ID, Scope: storage.Scope{Organization: d.Organization, ResourcePath: d.ResourcePath},
		Type: d.Type, StartTime: d.StartTime.UTC(), Duration: d.Duration, TimeZone: d.TimeZone,
		Extensions: storage.CloneExtensions(d.Extensions), Created: d.Created, Modified: d.Modified,
	}
}

type cancellationDoc struct {
	ID           string            `json:"id"`
	Organization string            `json:"organization"`
	ResourcePath string            `json:"resource_path"`
	RecurrenceID string            `json:"recurrence_id"`
	OriginalTime time.Time         `json:"original_time"`
	Extensions   map[string]string `json:"extensions"`
	Created      time.Time         `json:"created"`
}

func toCancellationDoc(c *storage.Cancellation) cancellationDoc {
	return cancellationDoc{
		ID: c.ID, Organization: c.Organization, ResourcePath: c.ResourcePath, RecurrenceID: c.RecurrenceID,
		OriginalTime: c.OriginalTime.UTC(), Extensions: storage.CloneExtensions(c.Extensions), Created: c.Created,
	}
}

func (d cancellationDoc) model() *storage.Cancellation {
	return &storage.Cancellation{
		ID: d.ID, Scope: storage.Scope{Organization: d.Organization, ResourcePath: d.ResourcePath},
		RecurrenceID: d.RecurrenceID, OriginalTime: d.OriginalTime.UTC(),
		Extensions: storage.CloneExtensions(d.Extensions), Created: d.Created,
	}
}

type modificationDoc struct {
	ID                 string            `json:"id"`
	Organization       string            `json:"organization"`
	ResourcePath       string            `json:"resource_path"`
	RecurrenceID       string            `json:"recurrence_id"`
	OriginalTime       time.Time         `json:"original_time"`
	OriginalDuration   time.Duration     `json:"original_duration"`
	OriginalExtensions map[string]string `json:"original_extensions"`
	StartTime          time.Time         `json:"start_time"`
	Duration           time.Duration     `json:"duration"`
	Extensions         map[string]string `json:"extensions"`
	Created            time.Time         `json:"created"`
	Modified           time.Time         `json:"modified"`
}

func toModificationDoc(m *storage.Modification) modificationDoc {
	return modificationDoc{
		ID: m.ID, Organization: m.Organization, ResourcePath: m.ResourcePath, RecurrenceID: m.RecurrenceID,
		OriginalTime: m.OriginalTime.UTC(), OriginalDuration: m.OriginalDuration,
		OriginalExtensions: storage.CloneExtensions(m.OriginalExtensions),
		StartTime:          m.StartTime.UTC(), Duration: m.Duration,
		Extensions: storage.CloneExtensions(m.Extensions), Created: m.Created, Modified: m.Modified,
	}
}

func (d modificationDoc) model() *storage.Modification {
	return &storage.Modification{
		ID: d.ID, Scope: storage.Scope{Organization: d.Organization, ResourcePath: d.ResourcePath},
		RecurrenceID: d.RecurrenceID, OriginalTime: d.OriginalTime.UTC(), OriginalDuration: d.OriginalDuration,
		OriginalExtensions: storage.CloneExtensions(d.OriginalExtensions),
		StartTime:          d.StartTime.UTC(), Duration: d.Duration,
		Extensions: storage.CloneExtensions(d.Extensions), Created: d.Created, Modified: d.Modified,
	}
}
