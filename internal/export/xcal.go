package export

import (
	"strconv"
	"time"

	"github.com/beevik/etree"

	"calimport/internal/caltime"
	"calimport/internal/ical"
	"calimport/internal/model"
	"calimport/internal/recurrence"
)

// XCalNamespace is the RFC 6321 namespace.
const XCalNamespace = "urn:ietf:params:xml:ns:icalendar-2.0"

const (
	xDateLayout     = "2006-01-02"
	xDateTimeLayout = "2006-01-02T15:04:05Z"
)

var weekdayCodes = [...]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// XCal renders apps as an RFC 6321 document. Options.Expand has the same
// meaning as for ICS.
func XCal(apps []model.Appointment, opts Options) (string, error) {
	opts = opts.withDefaults()
	stamp := opts.Now().UTC()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("icalendar")
	root.CreateAttr("xmlns", XCalNamespace)

	vcal := root.CreateElement("vcalendar")
	props := vcal.CreateElement("properties")
	textProp(props, "prodid", opts.ProductID)
	textProp(props, "version", "2.0")
	textProp(props, "calscale", "GREGORIAN")
	comps := vcal.CreateElement("components")

	for _, app := range apps {
		if opts.Expand && app.Recurring() {
			for _, ev := range app.Events {
				vp := xEvent(comps, app, stamp, ev.Start, ev.End, ev.Text)
				timeProp(vp, "recurrence-id", ev.Start, ev.AllDay)
			}
			continue
		}
		vp := xEvent(comps, app, stamp, app.Basics.Start, app.Basics.End, app.Basics.Summary)
		if r := app.Recurrence; r != nil {
			recur(vp.CreateElement("rrule").CreateElement("recur"), *r)
			for _, ex := range r.Exceptions {
				exdate(vp, ex)
			}
		}
	}

	doc.Indent(2)
	return doc.WriteToString()
}

// xEvent appends a vevent and returns its properties element.
func xEvent(comps *etree.Element, app model.Appointment, stamp, start, end time.Time, summary string) *etree.Element {
	b := app.Basics
	ve := comps.CreateElement("vevent")
	vp := ve.CreateElement("properties")
	textProp(vp, "uid", b.UID)
	timeProp(vp, "dtstamp", stamp, false)
	timeProp(vp, "dtstart", start, b.AllDay)
	timeProp(vp, "dtend", end, b.AllDay)
	if summary != "" {
		textProp(vp, "summary", summary)
	}
	if b.Description != "" {
		textProp(vp, "description", b.Description)
	}
	if b.Location != "" {
		textProp(vp, "location", b.Location)
	}
	if b.Sequence > 0 {
		vp.CreateElement("sequence").CreateElement("integer").SetText(strconv.Itoa(b.Sequence))
	}
	if !b.Busy {
		textProp(vp, "transp", "TRANSPARENT")
	}

	if len(app.Alarms) > 0 {
		sub := ve.CreateElement("components")
		for _, a := range app.Alarms {
			ap := sub.CreateElement("valarm").CreateElement("properties")
			textProp(ap, "action", a.Action)
			ap.CreateElement("trigger").CreateElement("duration").SetText(ical.DurationOf(a.OffsetSeconds).String())
			if a.Description != "" {
				textProp(ap, "description", a.Description)
			}
			if a.Repeat > 0 {
				ap.CreateElement("repeat").CreateElement("integer").SetText(strconv.Itoa(a.Repeat))
				ap.CreateElement("duration").CreateElement("duration").SetText(ical.DurationOf(a.PauseSeconds).String())
			}
		}
	}
	return vp
}

func textProp(parent *etree.Element, name, value string) {
	parent.CreateElement(name).CreateElement("text").SetText(value)
}

func timeProp(parent *etree.Element, name string, t time.Time, date bool) {
	p := parent.CreateElement(name)
	if date {
		p.CreateElement("date").SetText(t.Format(xDateLayout))
		return
	}
	p.CreateElement("date-time").SetText(t.UTC().Format(xDateTimeLayout))
}

func exdate(parent *etree.Element, ex caltime.DateTime) {
	timeProp(parent, "exdate", ex.Time(), ex.IsDate())
}

func recur(el *etree.Element, r recurrence.Rule) {
	el.CreateElement("freq").SetText(r.Frequency.String())
	if u, ok := r.Until.Get(); ok {
		if u.IsDate() {
			el.CreateElement("until").SetText(u.Time().Format(xDateLayout))
		} else {
			el.CreateElement("until").SetText(u.Time().UTC().Format(xDateTimeLayout))
		}
	}
	if n, ok := r.Count.Get(); ok {
		el.CreateElement("count").SetText(strconv.Itoa(n))
	}
	if r.Interval > 1 {
		el.CreateElement("interval").SetText(strconv.Itoa(r.Interval))
	}
	ints := func(name string, vals []int) {
		for _, v := range vals {
			el.CreateElement(name).SetText(strconv.Itoa(v))
		}
	}
	ints("bysecond", r.BySecond)
	ints("byminute", r.ByMinute)
	ints("byhour", r.ByHour)
	for _, day := range r.Weekdays() {
		for _, n := range r.ByDay[day] {
			code := weekdayCodes[day]
			if n != 0 {
				code = strconv.Itoa(n) + code
			}
			el.CreateElement("byday").SetText(code)
		}
	}
	ints("bymonthday", r.ByMonthDay)
	ints("byyearday", r.ByYearDay)
	ints("byweekno", r.ByWeekNo)
	ints("bymonth", r.ByMonth)
	ints("bysetpos", r.BySetPos)
	if ws, ok := r.WeekStart.Get(); ok {
		el.CreateElement("wkst").SetText(weekdayCodes[ws])
	}
}
