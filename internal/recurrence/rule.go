package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"

	"calimport/internal/caltime"
)

// Frequency is the period a rule steps by. Sub-daily frequencies are not
// supported.
type Frequency int

const (
	// FrequencyUnspecified marks a rule without FREQ.
	FrequencyUnspecified Frequency = iota
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
	FrequencyYearly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "DAILY"
	case FrequencyWeekly:
		return "WEEKLY"
	case FrequencyMonthly:
		return "MONTHLY"
	case FrequencyYearly:
		return "YEARLY"
	}
	return "UNSPECIFIED"
}

var (
	// ErrCountAndUntil indicates a rule that sets both COUNT and UNTIL.
	ErrCountAndUntil = errors.New("recurrence: rule sets both count and until")
	// ErrInvalidInterval indicates a negative interval.
	ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")
	// ErrInvalidFrequency indicates a frequency the engine cannot expand.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
)

// Rule is a recurrence rule as consumed by the engine.
//
// Interval 0 is read as 1 and an absent WeekStart as Monday. ByDay maps a
// weekday to its signed ordinals; ordinal 0 selects every such weekday in
// the period.
type Rule struct {
	Frequency  Frequency
	Interval   int
	Count      mo.Option[int]
	Until      mo.Option[caltime.DateTime]
	WeekStart  mo.Option[time.Weekday]
	Exceptions []caltime.DateTime

	ByMonth    []int
	ByWeekNo   []int
	ByYearDay  []int
	ByMonthDay []int
	ByDay      map[time.Weekday][]int
	ByHour     []int
	ByMinute   []int
	BySecond   []int
	BySetPos   []int
}

// Simple reports whether the rule has no BY-rule at all, in which case the
// engine just steps from the start by the interval.
func (r Rule) Simple() bool {
	return len(r.ByMonth) == 0 && len(r.ByWeekNo) == 0 && len(r.ByYearDay) == 0 &&
		len(r.ByMonthDay) == 0 && len(r.ByDay) == 0 && len(r.ByHour) == 0 &&
		len(r.ByMinute) == 0 && len(r.BySecond) == 0 && len(r.BySetPos) == 0
}

// Validate reports whether the engine can expand the rule.
func (r Rule) Validate() error {
	if r.Frequency < FrequencyDaily || r.Frequency > FrequencyYearly {
		return fmt.Errorf("%w: %d", ErrInvalidFrequency, r.Frequency)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
	}
	if r.Count.IsPresent() && r.Until.IsPresent() {
		return ErrCountAndUntil
	}
	return nil
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r Rule) weekStart() time.Weekday { return r.WeekStart.OrElse(time.Monday) }

// Weekdays returns the BYDAY weekdays in week order starting at Sunday.
func (r Rule) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(r.ByDay))
	for wd := range r.ByDay {
		out = append(out, wd)
	}
	slices.Sort(out)
	return out
}

// IsException reports whether dt is excluded. A date-only exception removes
// every occurrence on that calendar date.
func (r Rule) IsException(dt caltime.DateTime) bool {
	for _, ex := range r.Exceptions {
		if ex.IsDate() {
			if dt.SameDate(ex) {
				return true
			}
			continue
		}
		if dt.Equal(ex) {
			return true
		}
	}
	return false
}
