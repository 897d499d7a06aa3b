package ical

import (
	"fmt"
	"slices"
)

// Properties is the ordered property list of a component.
type Properties []Property

// Get returns the first property of the given kind.
func (ps Properties) Get(kind PropKind) (Property, bool) {
	for _, p := range ps {
		if p.Kind == kind {
			return p, true
		}
	}
	return Property{}, false
}

// All returns every property of the given kind in order.
func (ps Properties) All(kind PropKind) []Property {
	var out []Property
	for _, p := range ps {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func (ps Properties) Count(kind PropKind) int {
	n := 0
	for _, p := range ps {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// Text is a shortcut for the text payload of the first property of kind.
func (ps Properties) Text(kind PropKind) string {
	p, ok := ps.Get(kind)
	if !ok {
		return ""
	}
	return p.Text()
}

func (ps Properties) clone() Properties {
	if ps == nil {
		return nil
	}
	out := make(Properties, len(ps))
	for i, p := range ps {
		p.Params = slices.Clone(p.Params)
		out[i] = p
	}
	return out
}

// Diagnostic records a content line that could not be parsed. The line is
// kept verbatim so callers can show it.
type Diagnostic struct {
	Line      string
	Component string
	Err       error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %v: %q", d.Component, d.Err, d.Line)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Calendar is the top level VCALENDAR block.
//
// Rejected holds properties that failed to parse; they never take part in
// interpretation but let the validator see what was lost. Foreign collects
// lines found outside the VCALENDAR bracket. Complete is set once the
// closing END:VCALENDAR was seen.
type Calendar struct {
	Properties Properties
	Rejected   []Property

	Events    []*VEvent
	Todos     []*VTodo
	Journals  []*VJournal
	FreeBusy  []*VFreeBusy
	Timezones []*VTimezone

	Diagnostics []Diagnostic
	Foreign     []string
	Complete    bool
}

type VEvent struct {
	Properties Properties
	Rejected   []Property
	Alarms     []*VAlarm
}

// UID returns the event UID, or "" when it has none.
func (e *VEvent) UID() string { return e.Properties.Text(PropUID) }

type VTodo struct {
	Properties Properties
	Rejected   []Property
	Alarms     []*VAlarm
}

type VAlarm struct {
	Properties Properties
	Rejected   []Property
}

type VJournal struct {
	Properties Properties
	Rejected   []Property
}

type VFreeBusy struct {
	Properties Properties
	Rejected   []Property
}

type VTimezone struct {
	Properties Properties
	Rejected   []Property
	Standard   []*Observance
	Daylight   []*Observance
}

// TZID returns the identifier the zone is referenced by.
func (z *VTimezone) TZID() string { return z.Properties.Text(PropTZID) }

// Observance is a STANDARD or DAYLIGHT sub-block of a VTIMEZONE.
type Observance struct {
	Properties Properties
	Rejected   []Property
}

// Timezone finds a VTIMEZONE by TZID.
func (c *Calendar) Timezone(tzid string) (*VTimezone, bool) {
	for _, z := range c.Timezones {
		if z.TZID() == tzid {
			return z, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the calendar tree.
func (c *Calendar) Clone() *Calendar {
	if c == nil {
		return nil
	}
	out := &Calendar{
		Properties:  c.Properties.clone(),
		Rejected:    slices.Clone(c.Rejected),
		Diagnostics: slices.Clone(c.Diagnostics),
		Foreign:     slices.Clone(c.Foreign),
		Complete:    c.Complete,
	}
	for _, e := range c.Events {
		out.Events = append(out.Events, &VEvent{
			Properties: e.Properties.clone(),
			Rejected:   slices.Clone(e.Rejected),
			Alarms:     cloneAlarms(e.Alarms),
		})
	}
	for _, t := range c.Todos {
		out.Todos = append(out.Todos, &VTodo{
			Properties: t.Properties.clone(),
			Rejected:   slices.Clone(t.Rejected),
			Alarms:     cloneAlarms(t.Alarms),
		})
	}
	for _, j := range c.Journals {
		out.Journals = append(out.Journals, &VJournal{Properties: j.Properties.clone(), Rejected: slices.Clone(j.Rejected)})
	}
	for _, f := range c.FreeBusy {
		out.FreeBusy = append(out.FreeBusy, &VFreeBusy{Properties: f.Properties.clone(), Rejected: slices.Clone(f.Rejected)})
	}
	for _, z := range c.Timezones {
		out.Timezones = append(out.Timezones, &VTimezone{
			Properties: z.Properties.clone(),
			Rejected:   slices.Clone(z.Rejected),
			Standard:   cloneObservances(z.Standard),
			Daylight:   cloneObservances(z.Daylight),
		})
	}
	return out
}

func cloneAlarms(in []*VAlarm) []*VAlarm {
	var out []*VAlarm
	for _, a := range in {
		out = append(out, &VAlarm{Properties: a.Properties.clone(), Rejected: slices.Clone(a.Rejected)})
	}
	return out
}

func cloneObservances(in []*Observance) []*Observance {
	var out []*Observance
	for _, o := range in {
		out = append(out, &Observance{Properties: o.Properties.clone(), Rejected: slices.Clone(o.Rejected)})
	}
	return out
}
