// Package caltime holds the date and date-time value used throughout the
// calendar core. A DateTime remembers whether it was written as a plain date
// (all-day semantics) or as a date-time, and whether the date-time is UTC,
// floating, or bound to a time zone.
package caltime

import (
	"errors"
	"fmt"
	"time"
)

const (
	layoutDate     = "20060102"
	layoutFloating = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// ErrInvalidDateTime is returned when a value does not follow the
// YYYYMMDD[THHMMSS[Z]] grammar or names a date that does not exist.
var ErrInvalidDateTime = errors.New("caltime: invalid date-time")

type zoneKind uint8

const (
	zoneFloating zoneKind = iota
	zoneUTC
	zoneBound
)

// DateTime is a calendar date or a date-time.
//
// Floating values keep their wall clock in a UTC-located time.Time until a
// zone is applied with WithZone. The date flag never changes after
// construction; all arithmetic preserves it.
type DateTime struct {
	t      time.Time
	isDate bool
	zone   zoneKind
}

// NewDate returns a date-only value.
func NewDate(year int, month time.Month, day int) DateTime {
	return DateTime{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), isDate: true}
}

// NewDateTime returns a date-time. A nil loc yields a floating value and
// time.UTC yields a UTC value.
func NewDateTime(year int, month time.Month, day, hour, min, sec int, loc *time.Location) DateTime {
	switch loc {
	case nil:
		return DateTime{t: time.Date(year, month, day, hour, min, sec, 0, time.UTC)}
	case time.UTC:
		return DateTime{t: time.Date(year, month, day, hour, min, sec, 0, time.UTC), zone: zoneUTC}
	default:
		return DateTime{t: time.Date(year, month, day, hour, min, sec, 0, loc), zone: zoneBound}
	}
}

// FromTime wraps an absolute time as a date-time value.
func FromTime(t time.Time) DateTime {
	if t.Location() == time.UTC {
		return DateTime{t: t, zone: zoneUTC}
	}
	return DateTime{t: t, zone: zoneBound}
}

// Parse reads the iCalendar DATE / DATE-TIME grammar.
func Parse(s string) (DateTime, error) {
	var (
		layout string
		out    DateTime
	)
	switch {
	case len(s) == 8:
		layout, out.isDate = layoutDate, true
	case len(s) == 15 && s[8] == 'T':
		layout = layoutFloating
	case len(s) == 16 && s[8] == 'T' && (s[15] == 'Z' || s[15] == 'z'):
		s = s[:15] + "Z"
		layout, out.zone = layoutUTC, zoneUTC
	default:
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}
	for i := 0; i < len(s); i++ {
		if i == 8 || (i == 15 && out.zone == zoneUTC) {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
		}
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}
	out.t = t
	return out, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) DateTime {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the canonical iCalendar form. Zone-bound values render
// their local wall clock; the zone itself travels in a TZID parameter.
func (d DateTime) String() string {
	switch {
	case d.isDate:
		return d.t.Format(layoutDate)
	case d.zone == zoneUTC:
		return d.t.Format(layoutUTC)
	default:
		return d.t.Format(layoutFloating)
	}
}

func (d DateTime) IsZero() bool     { return d.t.IsZero() }
func (d DateTime) IsDate() bool     { return d.isDate }
func (d DateTime) IsUTC() bool      { return d.zone == zoneUTC }
func (d DateTime) IsFloating() bool { return d.zone == zoneFloating }

// Time returns the underlying time. Floating values report their wall clock
// as if it were UTC.
func (d DateTime) Time() time.Time { return d.t }

// Location returns the bound zone, or nil for floating values.
func (d DateTime) Location() *time.Location {
	if d.zone == zoneFloating {
		return nil
	}
	return d.t.Location()
}

// WithZone binds a floating value (date or date-time) to loc keeping its wall
// clock. UTC and already bound values are returned unchanged.
func (d DateTime) WithZone(loc *time.Location) DateTime {
	if d.zone != zoneFloating || loc == nil {
		return d
	}
	y, m, day := d.t.Date()
	hh, mm, ss := d.t.Clock()
	out := DateTime{t: time.Date(y, m, day, hh, mm, ss, 0, loc), isDate: d.isDate, zone: zoneBound}
	if loc == time.UTC {
		out.zone = zoneUTC
	}
	return out
}

func (d DateTime) Date() (int, time.Month, int) { return d.t.Date() }
func (d DateTime) Clock() (int, int, int)       { return d.t.Clock() }
func (d DateTime) Year() int                    { return d.t.Year() }
func (d DateTime) Month() time.Month            { return d.t.Month() }
func (d DateTime) Day() int                     { return d.t.Day() }
func (d DateTime) Weekday() time.Weekday        { return d.t.Weekday() }
func (d DateTime) YearDay() int                 { return d.t.YearDay() }

// WithDate moves the value to another calendar date keeping its clock and
// zone. Callers check ValidDate first; out of range days are normalized.
func (d DateTime) WithDate(year int, month time.Month, day int) DateTime {
	hh, mm, ss := d.t.Clock()
	d.t = time.Date(year, month, day, hh, mm, ss, 0, d.t.Location())
	return d
}

// WithClock sets the time of day. Date values are returned unchanged.
func (d DateTime) WithClock(hour, min, sec int) DateTime {
	if d.isDate {
		return d
	}
	y, m, day := d.t.Date()
	d.t = time.Date(y, m, day, hour, min, sec, 0, d.t.Location())
	return d
}

func (d DateTime) AddDays(n int) DateTime {
	d.t = d.t.AddDate(0, 0, n)
	return d
}

// Add shifts a date-time by an exact duration. Dates are returned unchanged.
func (d DateTime) Add(dur time.Duration) DateTime {
	if d.isDate {
		return d
	}
	d.t = d.t.Add(dur)
	return d
}

func (d DateTime) AddWeeks(n int) DateTime { return d.AddDays(7 * n) }

func (d DateTime) AddMonths(n int) DateTime {
	d.t = d.t.AddDate(0, n, 0)
	return d
}

func (d DateTime) AddYears(n int) DateTime {
	d.t = d.t.AddDate(n, 0, 0)
	return d
}

// Compare orders two values. When either side is date-only only the calendar
// dates are compared.
func (d DateTime) Compare(o DateTime) int {
	if d.isDate || o.isDate {
		return compareDates(d.t, o.t)
	}
	return d.t.Compare(o.t)
}

func (d DateTime) Before(o DateTime) bool { return d.Compare(o) < 0 }
func (d DateTime) After(o DateTime) bool  { return d.Compare(o) > 0 }
func (d DateTime) Equal(o DateTime) bool  { return d.Compare(o) == 0 }

// SameDate reports whether both values fall on the same calendar date.
func (d DateTime) SameDate(o DateTime) bool { return compareDates(d.t, o.t) == 0 }

// Sub returns d-o between the underlying times.
func (d DateTime) Sub(o DateTime) time.Duration { return d.t.Sub(o.t) }

func compareDates(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	switch {
	case ay != by:
		return cmpInt(ay, by)
	case am != bm:
		return cmpInt(int(am), int(bm))
	default:
		return cmpInt(ad, bd)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ValidDate reports whether the given day exists in that month.
func ValidDate(year int, month time.Month, day int) bool {
	return day >= 1 && month >= time.January && month <= time.December && day <= DaysIn(year, month)
}

// DaysIn returns the number of days in the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysInYear returns 365 or 366.
func DaysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
