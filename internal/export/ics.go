// Package export writes interpreted appointments back out as iCalendar
// text or as xCal XML.
package export

import (
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"calimport/internal/ical"
	"calimport/internal/model"
	"calimport/internal/recurrence"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405Z"
)

type Options struct {
	// ProductID defaults to ical.DefaultProductID.
	ProductID string
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
	// Expand writes one VEVENT per materialized instance instead of one
	// VEVENT carrying the rule.
	Expand bool
}

func (o Options) withDefaults() Options {
	if o.ProductID == "" {
		o.ProductID = ical.DefaultProductID
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ICS serializes apps as one VCALENDAR. Times are written in UTC, all-day
// values as dates.
func ICS(apps []model.Appointment, opts Options) string {
	opts = opts.withDefaults()
	stamp := opts.Now().UTC()

	cal := ics.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)

	for _, app := range apps {
		if opts.Expand && app.Recurring() {
			for _, ev := range app.Events {
				ve := addEvent(cal, app, stamp, ev.Start, ev.End)
				ve.SetSummary(ev.Text)
				writeDate(ve, ics.ComponentProperty(ics.PropertyRecurrenceId), ev.Start, ev.AllDay)
			}
			continue
		}
		ve := addEvent(cal, app, stamp, app.Basics.Start, app.Basics.End)
		if app.Recurrence != nil {
			ve.AddRrule(RuleText(*app.Recurrence))
			for _, ex := range app.Recurrence.Exceptions {
				writeDate(ve, ics.ComponentPropertyExdate, ex.Time(), ex.IsDate())
			}
		}
	}
	return cal.Serialize()
}

func addEvent(cal *ics.Calendar, app model.Appointment, stamp, start, end time.Time) *ics.VEvent {
	b := app.Basics
	ve := cal.AddEvent(b.UID)
	ve.SetDtStampTime(stamp)
	if b.AllDay {
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(start)
		ve.SetEndAt(end)
	}
	if b.Summary != "" {
		ve.SetSummary(b.Summary)
	}
	if b.Description != "" {
		ve.SetDescription(b.Description)
	}
	if b.Location != "" {
		ve.SetLocation(b.Location)
	}
	if b.Sequence > 0 {
		ve.AddProperty(ics.ComponentPropertySequence, strconv.Itoa(b.Sequence))
	}
	if !b.Busy {
		ve.AddProperty(ics.ComponentPropertyTransp, "TRANSPARENT")
	}
	for _, a := range app.Alarms {
		va := ve.AddAlarm()
		va.AddProperty(ics.ComponentProperty(ics.PropertyAction), a.Action)
		va.AddProperty(ics.ComponentProperty(ics.PropertyTrigger), ical.DurationOf(a.OffsetSeconds).String())
		if a.Description != "" {
			va.AddProperty(ics.ComponentPropertyDescription, a.Description)
		}
		if a.Repeat > 0 {
			va.AddProperty(ics.ComponentProperty(ics.PropertyRepeat), strconv.Itoa(a.Repeat))
			va.AddProperty(ics.ComponentProperty(ics.PropertyDuration), ical.DurationOf(a.PauseSeconds).String())
		}
	}
	return ve
}

func writeDate(ve *ics.VEvent, prop ics.ComponentProperty, t time.Time, date bool) {
	if date {
		ve.AddProperty(prop, t.Format(dateLayout), ics.WithValue(string(ics.ValueDataTypeDate)))
		return
	}
	ve.AddProperty(prop, t.UTC().Format(dateTimeLayout))
}

var (
	frequencies = map[recurrence.Frequency]rrule.Frequency{
		recurrence.FrequencyDaily:   rrule.DAILY,
		recurrence.FrequencyWeekly:  rrule.WEEKLY,
		recurrence.FrequencyMonthly: rrule.MONTHLY,
		recurrence.FrequencyYearly:  rrule.YEARLY,
	}
	weekdays = [...]rrule.Weekday{
		time.Sunday:    rrule.SU,
		time.Monday:    rrule.MO,
		time.Tuesday:   rrule.TU,
		time.Wednesday: rrule.WE,
		time.Thursday:  rrule.TH,
		time.Friday:    rrule.FR,
		time.Saturday:  rrule.SA,
	}
)

// ROption converts r to the option set of github.com/teambition/rrule-go.
func ROption(r recurrence.Rule) rrule.ROption {
	opt := rrule.ROption{
		Freq:       frequencies[r.Frequency],
		Bymonth:    r.ByMonth,
		Byweekno:   r.ByWeekNo,
		Byyearday:  r.ByYearDay,
		Bymonthday: r.ByMonthDay,
		Byhour:     r.ByHour,
		Byminute:   r.ByMinute,
		Bysecond:   r.BySecond,
		Bysetpos:   r.BySetPos,
	}
	if r.Interval > 1 {
		opt.Interval = r.Interval
	}
	if n, ok := r.Count.Get(); ok {
		opt.Count = n
	}
	if u, ok := r.Until.Get(); ok {
		opt.Until = u.Time()
	}
	if ws, ok := r.WeekStart.Get(); ok {
		opt.Wkst = weekdays[ws]
	}
	for _, day := range r.Weekdays() {
		for _, n := range r.ByDay[day] {
			if n == 0 {
				opt.Byweekday = append(opt.Byweekday, weekdays[day])
			} else {
				opt.Byweekday = append(opt.Byweekday, weekdays[day].Nth(n))
			}
		}
	}
	return opt
}

// RuleText renders r as an RRULE value, without the property name.
func RuleText(r recurrence.Rule) string {
	opt := ROption(r)
	s := opt.RRuleString()
	return strings.TrimPrefix(s, "RRULE:")
}
