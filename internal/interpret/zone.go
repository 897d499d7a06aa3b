package interpret

import (
	"time"

	"calimport/internal/caltime"
	"calimport/internal/ical"
)

// zoneResolver turns the TZID of a property into a location. Identifiers the
// zone database does not know are looked up among the document's own
// VTIMEZONE blocks.
type zoneResolver struct {
	cal      *ical.Calendar
	fallback *time.Location
	custom   map[string]*time.Location
}

func newZoneResolver(cal *ical.Calendar, fallback *time.Location) *zoneResolver {
	return &zoneResolver{cal: cal, fallback: fallback, custom: make(map[string]*time.Location)}
}

// resolve binds dt according to the TZID parameter of p. UTC values are
// already absolute; floating values and unknown zones use the fallback.
func (z *zoneResolver) resolve(p ical.Property, dt caltime.DateTime) caltime.DateTime {
	if !dt.IsFloating() {
		return dt
	}
	return dt.WithZone(z.location(p))
}

func (z *zoneResolver) location(p ical.Property) *time.Location {
	prm, ok := p.Param(ical.ParamTZID)
	if !ok {
		return z.fallback
	}
	if zv, ok := prm.Value.(ical.ZoneValue); ok {
		return zv.Location
	}
	name := prm.Text()
	if loc, ok := z.custom[name]; ok {
		return loc
	}
	loc := z.fromVTimezone(name)
	z.custom[name] = loc
	return loc
}

// fromVTimezone builds a fixed zone from the first STANDARD observance, or
// the first DAYLIGHT one when there is no STANDARD.
func (z *zoneResolver) fromVTimezone(name string) *time.Location {
	vtz, ok := z.cal.Timezone(name)
	if !ok {
		return z.fallback
	}
	for _, obs := range [][]*ical.Observance{vtz.Standard, vtz.Daylight} {
		if len(obs) == 0 {
			continue
		}
		p, ok := obs[0].Properties.Get(ical.PropTZOffsetTo)
		if !ok {
			continue
		}
		if secs, ok := p.Int(); ok {
			return time.FixedZone(name, secs)
		}
	}
	return z.fallback
}
