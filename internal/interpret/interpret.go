// Package interpret maps a validated calendar tree onto appointments and
// materializes their occurrences.
package interpret

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"calimport/internal/caltime"
	"calimport/internal/ical"
	"calimport/internal/model"
	"calimport/internal/recurrence"
)

var (
	// ErrUnusableRule marks an event whose RRULE has no FREQ or one finer
	// than daily.
	ErrUnusableRule = errors.New("interpret: unusable recurrence rule")
	// ErrMissingStart marks an event without DTSTART.
	ErrMissingStart = errors.New("interpret: event has no DTSTART")
)

// UntitledText is the display text of events without SUMMARY.
const UntitledText = "Untitled"

type Options struct {
	// Location applies to floating values and unresolvable TZIDs.
	// Defaults to time.Local.
	Location *time.Location
	// Engine expands rules. Defaults to recurrence.NewEngine().
	Engine   *recurrence.Engine
	SourceID string
}

// Skip names an event that produced no appointment.
type Skip struct {
	UID    string
	Reason error
}

type Result struct {
	Appointments []model.Appointment
	Skipped      []Skip
}

// draft is an interpreted VEVENT before overrides are merged.
type draft struct {
	app model.Appointment
	rid caltime.DateTime // zero unless the VEVENT carries RECURRENCE-ID
}

// Interpret walks the events of cal in document order. Events that cannot
// be used are reported in Result.Skipped; nothing here fails the whole
// document.
func Interpret(cal *ical.Calendar, opts Options) Result {
	if cal == nil {
		return Result{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Engine == nil {
		opts.Engine = recurrence.NewEngine()
	}
	in := &interpreter{opts: opts, zones: newZoneResolver(cal, opts.Location)}

	var (
		res       Result
		masters   []*draft
		overrides []*draft
	)
	for _, ev := range cal.Events {
		d, err := in.event(ev)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{UID: ev.UID(), Reason: err})
			continue
		}
		if d.rid.IsZero() {
			masters = append(masters, d)
		} else {
			overrides = append(overrides, d)
		}
	}

	for _, ov := range overrides {
		if !applyOverride(masters, ov) {
			masters = append(masters, ov)
		}
	}
	for _, d := range masters {
		res.Appointments = append(res.Appointments, d.app)
	}
	return res
}

type interpreter struct {
	opts  Options
	zones *zoneResolver
}

func (in *interpreter) event(ev *ical.VEvent) (*draft, error) {
	ps := ev.Properties
	uid := ev.UID()

	dtstart, ok := ps.Get(ical.PropDtStart)
	if !ok {
		return nil, ErrMissingStart
	}
	raw, ok := dtstart.DateTime()
	if !ok {
		return nil, ErrMissingStart
	}
	start := in.zones.resolve(dtstart, raw)
	end := in.end(ps, start)

	var exdates []caltime.DateTime
	for _, ex := range ps.All(ical.PropExDate) {
		for _, dt := range ex.DateTimes() {
			exdates = append(exdates, in.zones.resolve(ex, dt))
		}
	}

	var rule *recurrence.Rule
	if rr, ok := ps.Get(ical.PropRRule); ok {
		r, err := ruleFromProperty(rr, start)
		if err != nil {
			return nil, err
		}
		r.Exceptions = exdates
		rule = &r
	}

	seq, _ := ps.Get(ical.PropSequence)
	seqN, _ := seq.Int()
	transp, _ := ps.Get(ical.PropTransp)

	d := &draft{}
	d.app = model.Appointment{
		Basics: model.AppointmentBasics{
			SourceID:    in.opts.SourceID,
			UID:         uid,
			Sequence:    seqN,
			Summary:     ps.Text(ical.PropSummary),
			Description: ps.Text(ical.PropDescription),
			Location:    ps.Text(ical.PropLocation),
			Busy:        transp.Value != ical.TranspValue(ical.TranspTransparent),
			AllDay:      start.IsDate(),
			Start:       start.Time(),
			End:         end.Time(),
		},
		Recurrence: rule,
		Alarms:     in.alarms(ev.Alarms, start, end),
	}
	if rid, ok := ps.Get(ical.PropRecurrenceID); ok {
		if dt, ok := rid.DateTime(); ok {
			d.rid = in.zones.resolve(rid, dt)
		}
	}

	starts := []caltime.DateTime{start}
	if rule != nil {
		var err error
		if starts, err = in.opts.Engine.Expand(*rule, start); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnusableRule, err)
		}
	}
	starts = in.withRDates(ps, starts, exdates)
	d.app.Events = makeEvents(d.app.Basics, starts, start, end)
	return d, nil
}

// end derives the end from DTEND, then DURATION, then the default length:
// one day for dates and zero for date-times.
func (in *interpreter) end(ps ical.Properties, start caltime.DateTime) caltime.DateTime {
	if p, ok := ps.Get(ical.PropDtEnd); ok {
		if dt, ok := p.DateTime(); ok {
			return in.zones.resolve(p, dt)
		}
	}
	if p, ok := ps.Get(ical.PropDuration); ok {
		if dur, ok := p.Duration(); ok {
			return dur.AddTo(start)
		}
	}
	if start.IsDate() {
		return start.AddDays(1)
	}
	return start
}

// withRDates adds explicit RDATE instances to the expanded starts. An
// RDATE matched by an EXDATE is dropped, with or without an RRULE.
func (in *interpreter) withRDates(ps ical.Properties, starts, exdates []caltime.DateTime) []caltime.DateTime {
	rdates := ps.All(ical.PropRDate)
	if len(rdates) == 0 {
		return starts
	}
	excluded := recurrence.Rule{Exceptions: exdates}
	for _, p := range rdates {
		for _, dt := range p.DateTimes() {
			dt = in.zones.resolve(p, dt)
			if excluded.IsException(dt) {
				continue
			}
			starts = append(starts, dt)
		}
	}
	slices.SortFunc(starts, func(a, b caltime.DateTime) int { return a.Compare(b) })
	return slices.CompactFunc(starts, func(a, b caltime.DateTime) bool { return a.Equal(b) })
}

func makeEvents(b model.AppointmentBasics, starts []caltime.DateTime, start, end caltime.DateTime) []model.Event {
	text := b.Summary
	if text == "" {
		text = UntitledText
	}
	spanDays := daysBetween(start, end)
	exact := end.Sub(start)

	events := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		ev := model.Event{UID: b.UID, Text: text, Start: s.Time(), AllDay: s.IsDate()}
		if s.IsDate() {
			ev.End = s.AddDays(spanDays).Time()
		} else {
			ev.End = s.Time().Add(exact)
		}
		events = append(events, ev)
	}
	return events
}

func daysBetween(a, b caltime.DateTime) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// applyOverride replaces the instance of a master with the same UID whose
// start matches the override's RECURRENCE-ID. It reports false when no
// master with that UID exists.
func applyOverride(masters []*draft, ov *draft) bool {
	for _, m := range masters {
		if m.app.Basics.UID != ov.app.Basics.UID {
			continue
		}
		replacement := ov.app.Events
		idx := slices.IndexFunc(m.app.Events, func(ev model.Event) bool {
			return ov.rid.Equal(caltime.FromTime(ev.Start))
		})
		if idx >= 0 {
			m.app.Events = slices.Replace(m.app.Events, idx, idx+1, replacement...)
		} else {
			m.app.Events = append(m.app.Events, replacement...)
		}
		slices.SortStableFunc(m.app.Events, func(a, b model.Event) int { return a.Start.Compare(b.Start) })
		return true
	}
	return false
}
