package recurrence

import (
	"fmt"
	"time"
)

// LoadZone resolves an IANA zone id. The empty id and "Local" are rejected
// so expansion never depends on the host configuration.
func LoadZone(id string) (*time.Location, error) {
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidZone, id, err)
	}
	return loc, nil
}

// LocalToUTC resolves a wall-clock time in loc to a UTC instant. Wall times
// inside a DST gap or fold resolve to the side time.Date picks, which is
// stable for a given zone database.
func LocalToUTC(year int, month time.Month, day, hour, min, sec int, loc *time.Location) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, loc).UTC()
}
