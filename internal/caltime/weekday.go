package caltime

import (
	"fmt"
	"strings"
	"time"
)

var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

var weekdayByCode = func() map[string]time.Weekday {
	m := make(map[string]time.Weekday, len(weekdayCodes))
	for i, c := range weekdayCodes {
		m[c] = time.Weekday(i)
	}
	return m
}()

// ParseWeekday maps a two-letter iCalendar weekday code (MO, TU, ...) to a
// time.Weekday. Matching is case-insensitive.
func ParseWeekday(code string) (time.Weekday, error) {
	wd, ok := weekdayByCode[strings.ToUpper(code)]
	if !ok {
		return time.Sunday, fmt.Errorf("%w: weekday %q", ErrInvalidDateTime, code)
	}
	return wd, nil
}

// WeekdayCode returns the two-letter code for wd.
func WeekdayCode(wd time.Weekday) string {
	return weekdayCodes[wd%7]
}
