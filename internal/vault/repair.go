package vault

import (
	"time"

	"github.com/google/uuid"
)

// Timestamp fields Repair can fill in
const (
	TimeLastModification = "LastModification"
	TimeLocationChanged  = "LocationChanged"
)

// Fix is one missing timestamp added by Repair
type Fix struct {
	ID    uuid.UUID
	Name  string
	Field string
	Group bool
}

// Repair sets missing modification and location-change times to now, so
// that merges can order the affected groups and entries
func (d *Database) Repair(now time.Time) []Fix {
	now = now.UTC().Truncate(time.Second)
	var fixes []Fix

	fill := func(t *Times, id uuid.UUID, name string, group bool) {
		if t.LastModification == nil {
			t.LastModification = cloneTime(&now)
			fixes = append(fixes, Fix{ID: id, Name: name, Field: TimeLastModification, Group: group})
		}
		if t.LocationChanged == nil {
			t.LocationChanged = cloneTime(&now)
			fixes = append(fixes, Fix{ID: id, Name: name, Field: TimeLocationChanged, Group: group})
		}
	}

	_ = d.Walk(func(_ []string, g *Group) error {
		fill(&g.Times, g.UUID, g.Name, true)
		for _, e := range g.Entries {
			fill(&e.Times, e.UUID, e.Title(), false)
		}
		return nil
	})
	return fixes
}
