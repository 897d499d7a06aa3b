package recurrence

import (
	"iter"
	"slices"
	"time"

	"calimport/internal/caltime"
)

// DefaultHorizon bounds rules that have neither COUNT nor UNTIL.
var DefaultHorizon = caltime.NewDate(2037, time.December, 31)

// DefaultMaxOccurrences caps a single expansion.
const DefaultMaxOccurrences = 100000

// Engine expands recurrence rules into occurrence start times.
type Engine struct {
	horizon        caltime.DateTime
	maxOccurrences int
}

// Option configures an Engine.
type Option func(*Engine)

// WithHorizon replaces DefaultHorizon.
func WithHorizon(h caltime.DateTime) Option {
	return func(e *Engine) {
		if !h.IsZero() {
			e.horizon = h
		}
	}
}

// WithMaxOccurrences replaces DefaultMaxOccurrences; n <= 0 keeps the default.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{horizon: DefaultHorizon, maxOccurrences: DefaultMaxOccurrences}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Horizon returns the fallback upper bound.
func (e *Engine) Horizon() caltime.DateTime { return e.horizon }

// Expand returns the chronologically ordered occurrences of rule anchored
// at start. COUNT counts rule matches before exception dates are removed.
func (e *Engine) Expand(rule Rule, start caltime.DateTime) ([]caltime.DateTime, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	var out []caltime.DateTime
	e.walk(rule, start, func(dt caltime.DateTime) bool {
		out = append(out, dt)
		return true
	})
	return out, nil
}

// All is the lazy form of Expand. An invalid rule yields nothing.
func (e *Engine) All(rule Rule, start caltime.DateTime) iter.Seq[caltime.DateTime] {
	return func(yield func(caltime.DateTime) bool) {
		if rule.Validate() != nil {
			return
		}
		e.walk(rule, start, yield)
	}
}

// cursor tracks the stop conditions shared by every frequency.
type cursor struct {
	rule     Rule
	start    caltime.DateTime
	last     caltime.DateTime
	count    int
	matched  int
	produced int
	max      int
	yield    func(caltime.DateTime) bool
	done     bool
}

// offer emits one candidate. Candidates must arrive in chronological order.
func (c *cursor) offer(dt caltime.DateTime) {
	if c.done || dt.Before(c.start) {
		return
	}
	if dt.After(c.last) {
		c.done = true
		return
	}
	c.matched++
	if !c.rule.IsException(dt) {
		c.produced++
		if !c.yield(dt) {
			c.done = true
			return
		}
	}
	if (c.count > 0 && c.matched >= c.count) || c.produced >= c.max {
		c.done = true
	}
}

// beyond reports whether a period starting on day lies past the last
// possible occurrence.
func (c *cursor) beyond(day time.Time) bool {
	return caltime.NewDate(day.Date()).After(c.last)
}

func (e *Engine) walk(rule Rule, start caltime.DateTime, yield func(caltime.DateTime) bool) {
	c := &cursor{
		rule:  rule,
		start: start,
		last:  rule.Until.OrElse(e.horizon),
		count: rule.Count.OrElse(0),
		max:   e.maxOccurrences,
		yield: yield,
	}
	if rule.Simple() {
		e.walkSimple(c)
		return
	}

	p := periodExpander{rule: rule, start: start}
	interval := rule.interval()
	for k := 0; !c.done; k++ {
		first, days := p.period(k * interval)
		if c.beyond(first) {
			return
		}
		for _, dt := range p.finish(days) {
			c.offer(dt)
			if c.done {
				return
			}
		}
	}
}

// walkSimple steps from the start. Monthly and yearly steps are computed
// from the start date so a skipped 31st or 29 February does not shift the
// following occurrences.
func (e *Engine) walkSimple(c *cursor) {
	interval := c.rule.interval()
	y, m, d := c.start.Date()
	for k := 0; !c.done; k++ {
		n := k * interval
		switch c.rule.Frequency {
		case FrequencyDaily:
			c.offer(c.start.AddDays(n))
		case FrequencyWeekly:
			c.offer(c.start.AddWeeks(n))
		case FrequencyMonthly:
			first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
			if c.beyond(first) {
				return
			}
			if caltime.ValidDate(first.Year(), first.Month(), d) {
				c.offer(c.start.WithDate(first.Year(), first.Month(), d))
			}
		case FrequencyYearly:
			first := time.Date(y+n, time.January, 1, 0, 0, 0, 0, time.UTC)
			if c.beyond(first) {
				return
			}
			if caltime.ValidDate(y+n, m, d) {
				c.offer(c.start.WithDate(y+n, m, d))
			}
		}
	}
}

// periodExpander builds the candidate set of one period.
type periodExpander struct {
	rule  Rule
	start caltime.DateTime
}

func (p periodExpander) startDay() time.Time {
	y, m, d := p.start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// period returns the first day of the period n steps after the start
// period, and the candidate days within it.
func (p periodExpander) period(n int) (time.Time, []time.Time) {
	sd := p.startDay()
	switch p.rule.Frequency {
	case FrequencyYearly:
		year := sd.Year() + n
		first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if len(p.rule.ByWeekNo) > 0 {
			// Week 1 may begin in late December of the previous year.
			if w1 := weekOne(year, p.rule.weekStart()); w1.Before(first) {
				first = w1
			}
		}
		return first, p.yearly(year)
	case FrequencyMonthly:
		first := time.Date(sd.Year(), sd.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
		return first, p.monthly(first.Year(), first.Month())
	case FrequencyWeekly:
		back := (int(sd.Weekday()) - int(p.rule.weekStart()) + 7) % 7
		first := sd.AddDate(0, 0, 7*n-back)
		return first, p.weekly(first)
	default:
		day := sd.AddDate(0, 0, n)
		return day, p.daily(day)
	}
}

func (p periodExpander) months() []time.Month {
	if len(p.rule.ByMonth) == 0 {
		out := make([]time.Month, 12)
		for i := range out {
			out[i] = time.Month(i + 1)
		}
		return out
	}
	out := make([]time.Month, 0, len(p.rule.ByMonth))
	for _, m := range p.rule.ByMonth {
		out = append(out, time.Month(m))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (p periodExpander) inMonths(d time.Time) bool {
	return len(p.rule.ByMonth) == 0 || slices.Contains(p.rule.ByMonth, int(d.Month()))
}

func (p periodExpander) yearly(year int) []time.Time {
	r := p.rule
	var days []time.Time
	expanded := false

	switch {
	case len(r.ByMonthDay) > 0:
		for _, m := range p.months() {
			days = append(days, monthDays(year, m, r.ByMonthDay)...)
		}
		expanded = true
	case len(r.ByYearDay) > 0:
		for _, d := range yearDays(year, r.ByYearDay) {
			if p.inMonths(d) {
				days = append(days, d)
			}
		}
		expanded = true
	}

	if len(r.ByWeekNo) > 0 {
		if expanded {
			days = slices.DeleteFunc(days, func(d time.Time) bool { return !p.inWeekNo(d) })
		} else {
			for _, d := range weekNoDays(year, r.ByWeekNo, r.weekStart()) {
				if p.inMonths(d) {
					days = append(days, d)
				}
			}
			expanded = true
		}
	}

	if len(r.ByDay) > 0 {
		if expanded {
			days = p.filterWeekdays(days)
		} else if len(r.ByMonth) > 0 {
			for _, m := range p.months() {
				first := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
				days = append(days, nthWeekdays(first, first.AddDate(0, 1, 0), r.ByDay)...)
			}
		} else {
			first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			days = nthWeekdays(first, first.AddDate(1, 0, 0), r.ByDay)
		}
		expanded = true
	}

	if !expanded {
		sd := p.startDay()
		months := []time.Month{sd.Month()}
		if len(r.ByMonth) > 0 {
			months = p.months()
		}
		for _, m := range months {
			if caltime.ValidDate(year, m, sd.Day()) {
				days = append(days, time.Date(year, m, sd.Day(), 0, 0, 0, 0, time.UTC))
			}
		}
	}
	return days
}

func (p periodExpander) monthly(year int, month time.Month) []time.Time {
	r := p.rule
	if len(r.ByMonth) > 0 && !slices.Contains(r.ByMonth, int(month)) {
		return nil
	}
	var days []time.Time
	expanded := false

	switch {
	case len(r.ByMonthDay) > 0:
		days = monthDays(year, month, r.ByMonthDay)
		expanded = true
	case len(r.ByYearDay) > 0:
		for _, d := range yearDays(year, r.ByYearDay) {
			if d.Month() == month {
				days = append(days, d)
			}
		}
		expanded = true
	}

	if len(r.ByDay) > 0 {
		if expanded {
			days = p.filterWeekdays(days)
		} else {
			first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			days = nthWeekdays(first, first.AddDate(0, 1, 0), r.ByDay)
		}
		expanded = true
	}

	if !expanded {
		d := p.startDay().Day()
		if caltime.ValidDate(year, month, d) {
			days = append(days, time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
		}
	}
	return days
}

func (p periodExpander) weekly(first time.Time) []time.Time {
	r := p.rule
	var days []time.Time
	if len(r.ByDay) > 0 {
		for i := range 7 {
			d := first.AddDate(0, 0, i)
			if _, ok := r.ByDay[d.Weekday()]; ok {
				days = append(days, d)
			}
		}
	} else {
		offset := (int(p.startDay().Weekday()) - int(first.Weekday()) + 7) % 7
		days = []time.Time{first.AddDate(0, 0, offset)}
	}
	// BYMONTH limits each day rather than dropping the whole week, so a
	// week straddling two months keeps its days in the listed month.
	return slices.DeleteFunc(days, func(d time.Time) bool {
		return !p.inMonths(d) || !p.matchesDayLists(d)
	})
}

// daily treats every BY-rule on days as a filter of the single day.
func (p periodExpander) daily(day time.Time) []time.Time {
	r := p.rule
	if !p.inMonths(day) || !p.matchesDayLists(day) {
		return nil
	}
	if len(r.ByDay) > 0 {
		if _, ok := r.ByDay[day.Weekday()]; !ok {
			return nil
		}
	}
	if len(r.ByWeekNo) > 0 && !p.inWeekNo(day) {
		return nil
	}
	return []time.Time{day}
}

// inWeekNo reports whether d lies in a listed week of its own year or of
// an adjacent year whose first or last week overlaps it.
func (p periodExpander) inWeekNo(d time.Time) bool {
	for y := d.Year() - 1; y <= d.Year()+1; y++ {
		if slices.ContainsFunc(weekNoDays(y, p.rule.ByWeekNo, p.rule.weekStart()), d.Equal) {
			return true
		}
	}
	return false
}

func (p periodExpander) matchesDayLists(d time.Time) bool {
	r := p.rule
	if len(r.ByMonthDay) > 0 && !slices.ContainsFunc(monthDays(d.Year(), d.Month(), r.ByMonthDay), d.Equal) {
		return false
	}
	if len(r.ByYearDay) > 0 && !slices.ContainsFunc(yearDays(d.Year(), r.ByYearDay), d.Equal) {
		return false
	}
	return true
}

func (p periodExpander) filterWeekdays(days []time.Time) []time.Time {
	return slices.DeleteFunc(days, func(d time.Time) bool {
		_, ok := p.rule.ByDay[d.Weekday()]
		return !ok
	})
}

// finish turns candidate days into sorted, de-duplicated date-times and
// applies BYSETPOS.
func (p periodExpander) finish(days []time.Time) []caltime.DateTime {
	r := p.rule
	var out []caltime.DateTime
	for _, d := range days {
		base := p.start.WithDate(d.Year(), d.Month(), d.Day())
		if p.start.IsDate() {
			out = append(out, base)
			continue
		}
		hh, mm, ss := p.start.Clock()
		for _, h := range orDefault(r.ByHour, hh) {
			for _, mi := range orDefault(r.ByMinute, mm) {
				for _, s := range orDefault(r.BySecond, ss) {
					out = append(out, base.WithClock(h, mi, s))
				}
			}
		}
	}
	slices.SortFunc(out, func(a, b caltime.DateTime) int { return a.Compare(b) })
	out = slices.CompactFunc(out, func(a, b caltime.DateTime) bool { return a.Equal(b) })

	if len(r.BySetPos) == 0 || len(out) == 0 {
		return out
	}
	var picked []caltime.DateTime
	for _, pos := range r.BySetPos {
		i := pos - 1
		if pos < 0 {
			i = len(out) + pos
		}
		if i >= 0 && i < len(out) {
			picked = append(picked, out[i])
		}
	}
	slices.SortFunc(picked, func(a, b caltime.DateTime) int { return a.Compare(b) })
	return slices.CompactFunc(picked, func(a, b caltime.DateTime) bool { return a.Equal(b) })
}

func orDefault(list []int, def int) []int {
	if len(list) == 0 {
		return []int{def}
	}
	return list
}

// monthDays resolves signed BYMONTHDAY values; days the month lacks are
// dropped.
func monthDays(year int, month time.Month, ords []int) []time.Time {
	n := caltime.DaysIn(year, month)
	var out []time.Time
	for _, o := range ords {
		d := o
		if o < 0 {
			d = n + o + 1
		}
		if d >= 1 && d <= n {
			out = append(out, time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
		}
	}
	return out
}

func yearDays(year int, ords []int) []time.Time {
	n := caltime.DaysInYear(year)
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for _, o := range ords {
		d := o
		if o < 0 {
			d = n + o + 1
		}
		if d >= 1 && d <= n {
			out = append(out, jan1.AddDate(0, 0, d-1))
		}
	}
	return out
}

// weekOne returns the first day of week 1: the first week, starting on
// wkst, with at least four days in the year.
func weekOne(year int, wkst time.Weekday) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) - int(wkst) + 7) % 7
	first := jan1.AddDate(0, 0, -offset)
	if offset > 3 {
		first = first.AddDate(0, 0, 7)
	}
	return first
}

// weekNoDays expands signed week numbers into all seven days of each week,
// including days that spill into the neighbouring years.
func weekNoDays(year int, weeks []int, wkst time.Weekday) []time.Time {
	w1 := weekOne(year, wkst)
	total := int(weekOne(year+1, wkst).Sub(w1).Hours()) / (24 * 7)
	var out []time.Time
	for _, wn := range weeks {
		if wn < 0 {
			wn = total + wn + 1
		}
		if wn < 1 || wn > total {
			continue
		}
		ws := w1.AddDate(0, 0, (wn-1)*7)
		for i := range 7 {
			out = append(out, ws.AddDate(0, 0, i))
		}
	}
	return out
}

// nthWeekdays expands BYDAY within [from, to). Ordinal 0 selects every
// matching weekday; a signed ordinal counts from the start or the end.
func nthWeekdays(from, to time.Time, byDay map[time.Weekday][]int) []time.Time {
	var out []time.Time
	for wd, ords := range byDay {
		var all []time.Time
		first := from.AddDate(0, 0, (int(wd)-int(from.Weekday())+7)%7)
		for d := first; d.Before(to); d = d.AddDate(0, 0, 7) {
			all = append(all, d)
		}
		if len(ords) == 0 {
			ords = []int{0}
		}
		for _, o := range ords {
			switch {
			case o == 0:
				out = append(out, all...)
			case o > 0 && o <= len(all):
				out = append(out, all[o-1])
			case o < 0 && -o <= len(all):
				out = append(out, all[len(all)+o])
			}
		}
	}
	return out
}
