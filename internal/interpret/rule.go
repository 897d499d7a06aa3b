package interpret

import (
	"fmt"
	"time"

	"github.com/samber/mo"

	"calimport/internal/caltime"
	"calimport/internal/ical"
	"calimport/internal/recurrence"
)

var frequencies = map[ical.Frequency]recurrence.Frequency{
	ical.FreqDaily:   recurrence.FrequencyDaily,
	ical.FreqWeekly:  recurrence.FrequencyWeekly,
	ical.FreqMonthly: recurrence.FrequencyMonthly,
	ical.FreqYearly:  recurrence.FrequencyYearly,
}

// ruleFromProperty maps the rule fields of an RRULE property one to one.
// A missing FREQ or one finer than daily is ErrUnusableRule.
func ruleFromProperty(p ical.Property, start caltime.DateTime) (recurrence.Rule, error) {
	var rule recurrence.Rule
	freqSeen := false

	for _, prm := range p.Params {
		switch v := prm.Value.(type) {
		case ical.FrequencyValue:
			f, ok := frequencies[ical.Frequency(v)]
			if !ok {
				return rule, fmt.Errorf("%w: FREQ=%s", ErrUnusableRule, ical.Frequency(v))
			}
			rule.Frequency, freqSeen = f, true
		case ical.DateTimeValue:
			until := v.DateTime
			if until.IsFloating() && !until.IsDate() {
				until = until.WithZone(start.Location())
			}
			rule.Until = mo.Some(until)
		case ical.IntValue:
			switch prm.Kind {
			case ical.ParamCount:
				rule.Count = mo.Some(int(v))
			case ical.ParamInterval:
				rule.Interval = int(v)
			}
		case ical.WeekdayValue:
			rule.WeekStart = mo.Some(time.Weekday(v))
		case ical.WeekdayNumsValue:
			if rule.ByDay == nil {
				rule.ByDay = make(map[time.Weekday][]int)
			}
			for _, wn := range v {
				rule.ByDay[wn.Day] = append(rule.ByDay[wn.Day], wn.Ordinal)
			}
		case ical.IntListValue:
			list := []int(v)
			switch prm.Kind {
			case ical.ParamBySecond:
				rule.BySecond = list
			case ical.ParamByMinute:
				rule.ByMinute = list
			case ical.ParamByHour:
				rule.ByHour = list
			case ical.ParamByMonthDay:
				rule.ByMonthDay = list
			case ical.ParamByYearDay:
				rule.ByYearDay = list
			case ical.ParamByWeekNo:
				rule.ByWeekNo = list
			case ical.ParamByMonth:
				rule.ByMonth = list
			case ical.ParamBySetPos:
				rule.BySetPos = list
			}
		}
	}
	if !freqSeen {
		return rule, fmt.Errorf("%w: no FREQ", ErrUnusableRule)
	}
	return rule, nil
}
