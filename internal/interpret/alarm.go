package interpret

import (
	"calimport/internal/caltime"
	"calimport/internal/ical"
	"calimport/internal/model"
)

// alarms reduces VALARMs to offsets relative to the event start. A TRIGGER
// duration with RELATED=END is shifted by the event length; an absolute
// TRIGGER becomes the distance from the start.
func (in *interpreter) alarms(valarms []*ical.VAlarm, start, end caltime.DateTime) []model.AppointmentAlarm {
	var out []model.AppointmentAlarm
	for _, va := range valarms {
		ps := va.Properties
		trig, ok := ps.Get(ical.PropTrigger)
		if !ok {
			continue
		}
		a := model.AppointmentAlarm{
			Action:      ps.Text(ical.PropAction),
			Description: ps.Text(ical.PropDescription),
		}

		if dur, ok := trig.Duration(); ok {
			a.OffsetSeconds = dur.TotalSeconds()
			if rel, ok := trig.Param(ical.ParamRelated); ok && rel.Text() == "END" {
				a.OffsetSeconds += int64(end.Sub(start).Seconds())
			}
		} else if at, ok := trig.DateTime(); ok {
			at = in.zones.resolve(trig, at)
			a.OffsetSeconds = int64(at.Sub(start).Seconds())
		}

		if n, ok := ps.Get(ical.PropRepeat); ok {
			a.Repeat, _ = n.Int()
		}
		if p, ok := ps.Get(ical.PropDuration); ok {
			if dur, ok := p.Duration(); ok {
				a.PauseSeconds = dur.TotalSeconds()
			}
		}
		out = append(out, a)
	}
	return out
}
