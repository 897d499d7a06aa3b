package ical

import (
	"slices"
	"strings"
)

type frameKind int

const (
	frameCalendar frameKind = iota
	frameEvent
	frameTodo
	frameJournal
	frameFreeBusy
	frameTimezone
	frameStandard
	frameDaylight
	frameAlarm
	frameOther
)

var frameKinds = map[string]frameKind{
	"VCALENDAR": frameCalendar,
	"VEVENT":    frameEvent,
	"VTODO":     frameTodo,
	"VJOURNAL":  frameJournal,
	"VFREEBUSY": frameFreeBusy,
	"VTIMEZONE": frameTimezone,
	"STANDARD":  frameStandard,
	"DAYLIGHT":  frameDaylight,
	"VALARM":    frameAlarm,
}

// allowedChildren lists which components may open inside each frame kind.
// Anything else opens an opaque frame whose content is skipped.
var allowedChildren = map[frameKind][]frameKind{
	frameCalendar: {frameEvent, frameTodo, frameJournal, frameFreeBusy, frameTimezone},
	frameEvent:    {frameAlarm},
	frameTodo:     {frameAlarm},
	frameTimezone: {frameStandard, frameDaylight},
}

type frame struct {
	kind     frameKind
	name     string
	props    *Properties
	rejected *[]Property
	alarms   *[]*VAlarm
	zone     *VTimezone
}

// Builder assembles a component tree from unfolded content lines fed one
// at a time. The zero value is not usable; call NewBuilder.
type Builder struct {
	cal   *Calendar
	stack []frame
	seen  bool
}

func NewBuilder() *Builder {
	return &Builder{cal: &Calendar{}}
}

// Parse builds the calendar tree for a complete document.
func Parse(lines []string) *Calendar {
	b := NewBuilder()
	for _, l := range lines {
		b.Feed(l)
	}
	return b.Calendar()
}

// Calendar returns the tree built so far.
func (b *Builder) Calendar() *Calendar { return b.cal }

// Feed routes one line. It never fails: malformed lines end up in
// Calendar.Diagnostics and the owning component's Rejected list.
func (b *Builder) Feed(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}

	if len(b.stack) == 0 {
		cl := Tokenize(line)
		if !b.seen && cl.Name == "BEGIN" && strings.EqualFold(strings.TrimSpace(cl.Value), "VCALENDAR") {
			b.seen = true
			b.stack = append(b.stack, frame{
				kind:     frameCalendar,
				name:     "VCALENDAR",
				props:    &b.cal.Properties,
				rejected: &b.cal.Rejected,
			})
			return
		}
		b.cal.Foreign = append(b.cal.Foreign, line)
		return
	}

	if len(line) >= 2 && strings.EqualFold(line[:2], "X-") {
		return
	}

	cl := Tokenize(line)
	top := &b.stack[len(b.stack)-1]
	switch cl.Name {
	case "BEGIN":
		b.begin(strings.ToUpper(strings.TrimSpace(cl.Value)))
		return
	case "END":
		b.end(strings.ToUpper(strings.TrimSpace(cl.Value)))
		return
	}
	if top.kind == frameOther {
		return
	}

	p := ParseContentLine(cl)
	p.Raw = line
	if p.HasError() {
		*top.rejected = append(*top.rejected, p)
		b.cal.Diagnostics = append(b.cal.Diagnostics, Diagnostic{Line: line, Component: top.name, Err: p.Err})
		return
	}
	if top.kind == frameEvent && p.Kind == PropDtStart {
		*top.props = slices.Insert(*top.props, 0, p)
		return
	}
	*top.props = append(*top.props, p)
}

func (b *Builder) begin(name string) {
	top := &b.stack[len(b.stack)-1]
	kind, known := frameKinds[name]
	if !known || top.kind == frameOther || !slices.Contains(allowedChildren[top.kind], kind) {
		b.stack = append(b.stack, frame{kind: frameOther, name: name})
		return
	}

	f := frame{kind: kind, name: name}
	switch kind {
	case frameEvent:
		ev := &VEvent{}
		b.cal.Events = append(b.cal.Events, ev)
		f.props, f.rejected, f.alarms = &ev.Properties, &ev.Rejected, &ev.Alarms
	case frameTodo:
		td := &VTodo{}
		b.cal.Todos = append(b.cal.Todos, td)
		f.props, f.rejected, f.alarms = &td.Properties, &td.Rejected, &td.Alarms
	case frameJournal:
		j := &VJournal{}
		b.cal.Journals = append(b.cal.Journals, j)
		f.props, f.rejected = &j.Properties, &j.Rejected
	case frameFreeBusy:
		fb := &VFreeBusy{}
		b.cal.FreeBusy = append(b.cal.FreeBusy, fb)
		f.props, f.rejected = &fb.Properties, &fb.Rejected
	case frameTimezone:
		z := &VTimezone{}
		b.cal.Timezones = append(b.cal.Timezones, z)
		f.props, f.rejected, f.zone = &z.Properties, &z.Rejected, z
	case frameStandard, frameDaylight:
		o := &Observance{}
		if kind == frameStandard {
			top.zone.Standard = append(top.zone.Standard, o)
		} else {
			top.zone.Daylight = append(top.zone.Daylight, o)
		}
		f.props, f.rejected = &o.Properties, &o.Rejected
	case frameAlarm:
		a := &VAlarm{}
		*top.alarms = append(*top.alarms, a)
		f.props, f.rejected = &a.Properties, &a.Rejected
	}
	b.stack = append(b.stack, f)
}

// end pops the open component when the name matches; a mismatched END is
// ignored and the component keeps reading.
func (b *Builder) end(name string) {
	top := b.stack[len(b.stack)-1]
	if top.name != name {
		return
	}
	b.stack = b.stack[:len(b.stack)-1]
	if top.kind == frameCalendar {
		b.cal.Complete = true
	}
}
