package caltime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in       string
		isDate   bool
		utc      bool
		floating bool
	}{
		{in: "20240101", isDate: true, floating: true},
		{in: "20240229", isDate: true, floating: true},
		{in: "20240101T093000", floating: true},
		{in: "20240101T093000Z", utc: true},
		{in: "19991231T235959Z", utc: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.in, d.String())
			assert.Equal(t, tt.isDate, d.IsDate())
			assert.Equal(t, tt.utc, d.IsUTC())
			assert.Equal(t, tt.floating, d.IsFloating())
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"", "2024", "20240230", "20231301", "20240101T250000", "20240101X093000",
		"20240101T0930", "2024010AT093000", "20240101T093000ZZ", "abcdefgh",
	} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidDateTime, in)
	}
}

func TestParseLowercaseZ(t *testing.T) {
	d, err := Parse("20240101T093000z")
	require.NoError(t, err)
	assert.True(t, d.IsUTC())
	assert.Equal(t, "20240101T093000Z", d.String())
}

func TestDateOnlyComparesByCalendarDate(t *testing.T) {
	date := NewDate(2024, time.March, 5)
	morning := NewDateTime(2024, time.March, 5, 8, 0, 0, time.UTC)
	nextDay := NewDateTime(2024, time.March, 6, 0, 0, 0, time.UTC)

	assert.True(t, date.Equal(morning))
	assert.True(t, morning.Equal(date))
	assert.True(t, date.Before(nextDay))
	assert.False(t, morning.Equal(morning.WithClock(9, 0, 0)))
}

func TestArithmeticPreservesDateFlag(t *testing.T) {
	d := NewDate(2024, time.January, 31)
	assert.True(t, d.AddDays(1).IsDate())
	assert.True(t, d.AddWeeks(2).IsDate())
	assert.True(t, d.AddMonths(1).IsDate())
	assert.True(t, d.AddYears(1).IsDate())

	dt := NewDateTime(2024, time.January, 31, 10, 0, 0, nil)
	assert.False(t, dt.AddMonths(1).IsDate())
	assert.Equal(t, "20240207T100000", dt.AddWeeks(1).String())
}

func TestWithZoneKeepsWallClock(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	d := MustParse("20240601T090000").WithZone(loc)

	assert.False(t, d.IsFloating())
	assert.Equal(t, loc, d.Location())
	assert.Equal(t, 7, d.Time().UTC().Hour())
	assert.Equal(t, "20240601T090000", d.String())

	utc := MustParse("20240601T090000Z")
	assert.Equal(t, utc, utc.WithZone(loc))
}

func TestWithClockIgnoredForDates(t *testing.T) {
	d := NewDate(2024, time.May, 1)
	assert.Equal(t, d, d.WithClock(10, 30, 0))
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate(2024, time.February, 29))
	assert.False(t, ValidDate(2023, time.February, 29))
	assert.False(t, ValidDate(2024, time.April, 31))
	assert.False(t, ValidDate(2024, time.April, 0))
	assert.Equal(t, 366, DaysInYear(2024))
	assert.Equal(t, 365, DaysInYear(2100))
}

func TestWeekdayCodes(t *testing.T) {
	wd, err := ParseWeekday("fr")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, wd)
	assert.Equal(t, "SU", WeekdayCode(time.Sunday))

	_, err = ParseWeekday("XX")
	assert.Error(t, err)
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
	// cached failure is returned again
	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}
