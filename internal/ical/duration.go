package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"calimport/internal/caltime"
)

// Duration is an RFC 5545 DURATION: either whole weeks or days plus a time
// part. Days are nominal (calendar days), the time part is exact.
type Duration struct {
	Negative bool
	Weeks    int
	Days     int
	Hours    int
	Minutes  int
	Seconds  int
}

// ParseDuration reads [+|-]P(nW | [nD][T[nH][nM][nS]]).
func ParseDuration(s string) (Duration, error) {
	var d Duration
	orig := s
	bad := func() (Duration, error) {
		return Duration{}, fmt.Errorf("%w: duration %q", ErrInvalidValue, orig)
	}

	switch {
	case strings.HasPrefix(s, "-"):
		d.Negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") && !strings.HasPrefix(s, "p") {
		return bad()
	}
	s = strings.ToUpper(s[1:])
	if s == "" {
		return bad()
	}

	num := func() (int, bool) {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, false
		}
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, false
		}
		s = s[i:]
		return n, true
	}

	if strings.HasSuffix(s, "W") {
		n, ok := num()
		if !ok || s != "W" {
			return bad()
		}
		d.Weeks = n
		return d, nil
	}

	seen := false
	if s != "" && s[0] != 'T' {
		n, ok := num()
		if !ok || s == "" || s[0] != 'D' {
			return bad()
		}
		d.Days, s, seen = n, s[1:], true
	}
	if s != "" {
		if s[0] != 'T' || len(s) == 1 {
			return bad()
		}
		s = s[1:]
		order := "HMS"
		for s != "" {
			n, ok := num()
			if !ok || s == "" {
				return bad()
			}
			idx := strings.IndexByte(order, s[0])
			if idx < 0 {
				return bad()
			}
			switch order[idx] {
			case 'H':
				d.Hours = n
			case 'M':
				d.Minutes = n
			case 'S':
				d.Seconds = n
			}
			order = order[idx+1:]
			s = s[1:]
			seen = true
		}
	}
	if !seen {
		return bad()
	}
	return d, nil
}

func (d Duration) sign() int {
	if d.Negative {
		return -1
	}
	return 1
}

// TotalSeconds converts the duration counting a day as 86400 seconds.
func (d Duration) TotalSeconds() int64 {
	days := int64(d.Weeks*7 + d.Days)
	secs := days*86400 + int64(d.Hours)*3600 + int64(d.Minutes)*60 + int64(d.Seconds)
	return int64(d.sign()) * secs
}

// TimeDuration is TotalSeconds as a time.Duration.
func (d Duration) TimeDuration() time.Duration {
	return time.Duration(d.TotalSeconds()) * time.Second
}

// AddTo adds the duration to dt, stepping whole days on the calendar so
// that a one day duration spans a DST change correctly.
func (d Duration) AddTo(dt caltime.DateTime) caltime.DateTime {
	sign := d.sign()
	out := dt.AddDays(sign * (d.Weeks*7 + d.Days))
	clock := time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute + time.Duration(d.Seconds)*time.Second
	if clock == 0 || out.IsDate() {
		return out
	}
	return out.Add(time.Duration(sign) * clock)
}

func (d Duration) String() string {
	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if d.Weeks > 0 {
		fmt.Fprintf(&b, "%dW", d.Weeks)
		return b.String()
	}
	if d.Days > 0 {
		fmt.Fprintf(&b, "%dD", d.Days)
	}
	if d.Hours > 0 || d.Minutes > 0 || d.Seconds > 0 {
		b.WriteByte('T')
		if d.Hours > 0 {
			fmt.Fprintf(&b, "%dH", d.Hours)
		}
		if d.Minutes > 0 {
			fmt.Fprintf(&b, "%dM", d.Minutes)
		}
		if d.Seconds > 0 {
			fmt.Fprintf(&b, "%dS", d.Seconds)
		}
	}
	if b.Len() <= 2 && d.Days == 0 {
		b.WriteString("T0S")
	}
	return b.String()
}

// DurationOf splits secs into days and a time part.
func DurationOf(secs int64) Duration {
	var d Duration
	if secs < 0 {
		d.Negative = true
		secs = -secs
	}
	d.Days = int(secs / 86400)
	secs %= 86400
	d.Hours = int(secs / 3600)
	d.Minutes = int(secs % 3600 / 60)
	d.Seconds = int(secs % 60)
	return d
}
