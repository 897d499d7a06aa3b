package ical

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"calimport/internal/caltime"
)

// DefaultProductID is written when a calendar carries no PRODID.
const DefaultProductID = "-//calimport//calimport 1.0//EN"

// ValidateOptions controls what Validate synthesizes for missing required
// properties. Zero values select uuid.NewString, time.Now and
// DefaultProductID.
type ValidateOptions struct {
	NewUID    func() string
	Now       func() time.Time
	ProductID string
}

func (o ValidateOptions) withDefaults() ValidateOptions {
	if o.NewUID == nil {
		o.NewUID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ProductID == "" {
		o.ProductID = DefaultProductID
	}
	return o
}

// Problem is one failed cardinality or consistency check.
type Problem struct {
	Component string
	UID       string
	Message   string
}

func (p Problem) String() string {
	if p.UID != "" {
		return fmt.Sprintf("%s %s: %s", p.Component, p.UID, p.Message)
	}
	return p.Component + ": " + p.Message
}

// Amendment records a property Validate synthesized.
type Amendment struct {
	Component string
	Property  string
	Value     string
}

type Report struct {
	Valid      bool
	Problems   []Problem
	Amendments []Amendment
}

// Validate checks cardinalities over a copy of cal and returns the amended
// copy together with the report. cal itself is never modified. Missing
// PRODID, and a missing UID or DTSTAMP on an event, are synthesized rather
// than reported.
func Validate(cal *Calendar, opts ValidateOptions) (*Calendar, Report) {
	if cal == nil {
		return nil, Report{Problems: []Problem{{Component: "VCALENDAR", Message: "no calendar"}}}
	}
	opts = opts.withDefaults()
	out := cal.Clone()
	v := &validator{opts: opts, stamp: caltime.FromTime(opts.Now().UTC().Truncate(time.Second))}
	v.calendar(out)
	v.report.Valid = len(v.report.Problems) == 0
	return out, v.report
}

type validator struct {
	opts   ValidateOptions
	stamp  caltime.DateTime
	report Report
}

func (v *validator) fail(component, uid, format string, args ...any) {
	v.report.Problems = append(v.report.Problems, Problem{Component: component, UID: uid, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) exactlyOne(ps Properties, kind PropKind, component, uid string) {
	if n := ps.Count(kind); n != 1 {
		v.fail(component, uid, "want exactly one %s, have %d", kind, n)
	}
}

// synthesize adds prop when kind is absent and checks there is not more
// than one otherwise.
func (v *validator) synthesize(ps *Properties, kind PropKind, value Value, component, uid string) {
	switch n := ps.Count(kind); {
	case n == 0:
		p := Property{Kind: kind, Name: kind.String(), Value: value}
		p.Raw = p.Name + ":" + p.Text()
		*ps = append(*ps, p)
		v.report.Amendments = append(v.report.Amendments, Amendment{Component: component, Property: p.Name, Value: p.Text()})
	case n > 1:
		v.fail(component, uid, "want exactly one %s, have %d", kind, n)
	}
}

func (v *validator) calendar(c *Calendar) {
	const comp = "VCALENDAR"
	if !c.Complete {
		v.fail(comp, "", "missing BEGIN:VCALENDAR or END:VCALENDAR")
	}
	v.exactlyOne(c.Properties, PropVersion, comp, "")
	if n := c.Properties.Count(PropCalScale); n > 1 {
		v.fail(comp, "", "want at most one CALSCALE, have %d", n)
	}
	for _, r := range c.Rejected {
		if r.Kind == PropCalScale || r.Kind == PropVersion {
			v.fail(comp, "", "%v", r.Err)
		}
	}
	v.synthesize(&c.Properties, PropProdID, TextValue(v.opts.ProductID), comp, "")

	for _, e := range c.Events {
		v.event(e)
	}
	for _, t := range c.Todos {
		v.simple("VTODO", t.Properties)
		for _, a := range t.Alarms {
			v.alarm(a, t.Properties.Text(PropUID))
		}
	}
	for _, j := range c.Journals {
		v.simple("VJOURNAL", j.Properties)
	}
	for _, f := range c.FreeBusy {
		v.simple("VFREEBUSY", f.Properties)
	}
	for _, z := range c.Timezones {
		v.timezone(z)
	}
}

func (v *validator) event(e *VEvent) {
	const comp = "VEVENT"
	v.synthesize(&e.Properties, PropUID, TextValue(v.opts.NewUID()), comp, "")
	uid := e.UID()
	v.synthesize(&e.Properties, PropDtStamp, DateTimeValue{v.stamp}, comp, uid)
	v.exactlyOne(e.Properties, PropDtStart, comp, uid)
	if n := e.Properties.Count(PropDtEnd) + e.Properties.Count(PropDuration); n > 1 {
		v.fail(comp, uid, "DTEND and DURATION are mutually exclusive")
	}
	for _, rr := range e.Properties.All(PropRRule) {
		_, hasCount := rr.Param(ParamCount)
		_, hasUntil := rr.Param(ParamUntil)
		if hasCount && hasUntil {
			v.fail(comp, uid, "RRULE declares both COUNT and UNTIL")
		}
	}
	for _, r := range e.Rejected {
		if r.Kind == PropRRule {
			v.fail(comp, uid, "invalid RRULE: %v", r.Err)
		}
	}
	for _, a := range e.Alarms {
		v.alarm(a, uid)
	}
}

func (v *validator) alarm(a *VAlarm, uid string) {
	v.exactlyOne(a.Properties, PropAction, "VALARM", uid)
	v.exactlyOne(a.Properties, PropTrigger, "VALARM", uid)
}

func (v *validator) simple(comp string, ps Properties) {
	uid := ps.Text(PropUID)
	v.exactlyOne(ps, PropUID, comp, uid)
	v.exactlyOne(ps, PropDtStamp, comp, uid)
}

func (v *validator) timezone(z *VTimezone) {
	const comp = "VTIMEZONE"
	tzid := z.TZID()
	v.exactlyOne(z.Properties, PropTZID, comp, tzid)
	if len(z.Standard)+len(z.Daylight) == 0 {
		v.fail(comp, tzid, "no STANDARD or DAYLIGHT block")
	}
	for _, o := range slices.Concat(z.Standard, z.Daylight) {
		for _, k := range []PropKind{PropDtStart, PropTZOffsetFrom, PropTZOffsetTo} {
			v.exactlyOne(o.Properties, k, comp, tzid)
		}
	}
}
