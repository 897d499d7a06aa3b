package ical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calimport/internal/caltime"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ContentLine
	}{
		{
			name: "params and value",
			line: "DTSTART;TZID=Europe/Berlin:20240101T090000",
			want: ContentLine{Name: "DTSTART", Params: []string{"TZID=Europe/Berlin"}, Value: "20240101T090000"},
		},
		{
			name: "quoted delimiters",
			line: `ATTENDEE;ALTREP="cid:part1;x";CN=Jane:mailto:jane@example.com`,
			want: ContentLine{Name: "ATTENDEE", Params: []string{`ALTREP="cid:part1;x"`, "CN=Jane"}, Value: "mailto:jane@example.com"},
		},
		{
			name: "rrule value becomes fields",
			line: "RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4",
			want: ContentLine{Name: "RRULE", RuleFields: []string{"FREQ=WEEKLY", "BYDAY=MO,WE", "COUNT=4"}},
		},
		{
			name: "bare name",
			line: "SUMMARY",
			want: ContentLine{Name: "SUMMARY"},
		},
		{
			name: "lowercase name and colons in value",
			line: "description:Meet at 10:00",
			want: ContentLine{Name: "DESCRIPTION", Value: "Meet at 10:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.line))
		})
	}
}

func TestParseParameterStandard(t *testing.T) {
	p := ParseParameter("CUTYPE=ROBOT", false)
	require.False(t, p.HasError())
	assert.Equal(t, ParamCUType, p.Kind)
	assert.Equal(t, EnumValue{Token: "ROBOT"}, p.Value)

	p = ParseParameter("partstat=accepted", false)
	assert.Equal(t, ParamPartStat, p.Kind)
	assert.Equal(t, EnumValue{Token: "ACCEPTED", Known: true}, p.Value)

	p = ParseParameter("RSVP=TRUE", false)
	assert.Equal(t, BoolValue(true), p.Value)

	p = ParseParameter("RSVP=maybe", false)
	assert.ErrorIs(t, p.Err, ErrInvalidValue)

	p = ParseParameter("RANGE=THISANDPRIOR", false)
	assert.ErrorIs(t, p.Err, ErrUnknownEnum)

	p = ParseParameter("RELATED=END", false)
	assert.Equal(t, "END", p.Text())

	p = ParseParameter(`MEMBER="mailto:a@example.com","mailto:b@example.com"`, false)
	assert.Equal(t, TextListValue{"mailto:a@example.com", "mailto:b@example.com"}, p.Value)

	p = ParseParameter(`ALTREP="cid:part1;x"`, false)
	assert.Equal(t, TextValue("cid:part1;x"), p.Value)

	p = ParseParameter("X-VENDOR=something", false)
	assert.Equal(t, ParamOther, p.Kind)
	assert.False(t, p.HasError())
	assert.Equal(t, TextValue("something"), p.Value)
}

func TestParseParameterTZID(t *testing.T) {
	p := ParseParameter("TZID=Europe/Berlin", false)
	require.False(t, p.HasError())
	zv, ok := p.Value.(ZoneValue)
	require.True(t, ok)
	assert.Equal(t, "Europe/Berlin", zv.Location.String())

	p = ParseParameter("TZID=Company Standard Time", false)
	require.False(t, p.HasError())
	assert.Equal(t, TextValue("Company Standard Time"), p.Value)
}

func TestParseParameterRuleFields(t *testing.T) {
	tests := []struct {
		token string
		kind  ParamKind
		want  Value
		err   error
	}{
		{token: "FREQ=YEARLY", kind: ParamFreq, want: FrequencyValue(FreqYearly)},
		{token: "FREQ=FORTNIGHTLY", kind: ParamFreq, err: ErrUnknownEnum},
		{token: "UNTIL=20241231T235959Z", kind: ParamUntil, want: DateTimeValue{caltime.MustParse("20241231T235959Z")}},
		{token: "UNTIL=2024", kind: ParamUntil, err: ErrInvalidValue},
		{token: "COUNT=5", kind: ParamCount, want: IntValue(5)},
		{token: "COUNT=0", kind: ParamCount, err: ErrOutOfRange},
		{token: "INTERVAL=x", kind: ParamInterval, err: ErrInvalidValue},
		{token: "BYSECOND=0,60", kind: ParamBySecond, want: IntListValue{0, 60}},
		{token: "BYMINUTE=60", kind: ParamByMinute, err: ErrOutOfRange},
		{token: "BYHOUR=24", kind: ParamByHour, err: ErrOutOfRange},
		{token: "BYMONTHDAY=-31,1,31", kind: ParamByMonthDay, want: IntListValue{-31, 1, 31}},
		{token: "BYMONTHDAY=32", kind: ParamByMonthDay, err: ErrOutOfRange},
		{token: "BYMONTHDAY=0", kind: ParamByMonthDay, err: ErrOutOfRange},
		{token: "BYYEARDAY=-366", kind: ParamByYearDay, want: IntListValue{-366}},
		{token: "BYYEARDAY=367", kind: ParamByYearDay, err: ErrOutOfRange},
		{token: "BYWEEKNO=-53,20", kind: ParamByWeekNo, want: IntListValue{-53, 20}},
		{token: "BYMONTH=13", kind: ParamByMonth, err: ErrOutOfRange},
		{token: "BYMONTH=-1", kind: ParamByMonth, err: ErrOutOfRange},
		{token: "BYSETPOS=-1", kind: ParamBySetPos, want: IntListValue{-1}},
		{
			token: "BYDAY=-1FR,MO,+2TU", kind: ParamByDay,
			want: WeekdayNumsValue{{Ordinal: -1, Day: time.Friday}, {Day: time.Monday}, {Ordinal: 2, Day: time.Tuesday}},
		},
		{token: "BYDAY=54MO", kind: ParamByDay, err: ErrOutOfRange},
		{token: "BYDAY=1XX", kind: ParamByDay, err: ErrInvalidValue},
		{token: "WKST=SU", kind: ParamWkst, want: WeekdayValue(time.Sunday)},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			p := ParseParameter(tt.token, true)
			assert.Equal(t, tt.kind, p.Kind)
			if tt.err != nil {
				assert.ErrorIs(t, p.Err, tt.err)
				return
			}
			require.NoError(t, p.Err)
			assert.Equal(t, tt.want, p.Value)
		})
	}
}

func TestParseParameterKeepsFamiliesApart(t *testing.T) {
	p := ParseParameter("FREQ=DAILY", false)
	assert.Equal(t, ParamOther, p.Kind)
	assert.False(t, p.HasError())

	p = ParseParameter("TZID=UTC", true)
	assert.Equal(t, ParamOther, p.Kind)
}

func TestParseProperty(t *testing.T) {
	p := ParseProperty("DTSTART;VALUE=DATE:20240101")
	require.NoError(t, p.Err)
	dt, ok := p.DateTime()
	require.True(t, ok)
	assert.True(t, dt.IsDate())
	assert.Equal(t, "DTSTART;VALUE=DATE:20240101", p.Raw)

	p = ParseProperty("DTSTART;VALUE=DATE:20240101T090000")
	assert.ErrorIs(t, p.Err, ErrInvalidValue)

	p = ParseProperty("DTEND:2024-01-01")
	assert.True(t, p.HasError())

	p = ParseProperty("RECURRENCE-ID:20240108T090000Z")
	require.NoError(t, p.Err)
	assert.Equal(t, PropRecurrenceID, p.Kind)

	p = ParseProperty("EXDATE:20240101T090000Z,20240102T090000Z")
	require.NoError(t, p.Err)
	assert.Len(t, p.Value, 2)
	assert.Len(t, p.DateTimes(), 2)

	p = ParseProperty("EXDATE;VALUE=DATE:20240101")
	require.NoError(t, p.Err)
	assert.IsType(t, DateTimeValue{}, p.Value)

	p = ParseProperty("RDATE;VALUE=PERIOD:19960403T020000Z/19960403T040000Z")
	require.NoError(t, p.Err)
	assert.Equal(t, TextValue("19960403T020000Z/19960403T040000Z"), p.Value)

	p = ParseProperty("DURATION:PT1H30M")
	d, ok := p.Duration()
	require.True(t, ok)
	assert.Equal(t, Duration{Hours: 1, Minutes: 30}, d)

	p = ParseProperty("TRIGGER;RELATED=END:-PT15M")
	d, ok = p.Duration()
	require.True(t, ok)
	assert.Equal(t, int64(-900), d.TotalSeconds())

	p = ParseProperty("TRIGGER;VALUE=DATE-TIME:20240101T083000Z")
	_, ok = p.DateTime()
	assert.True(t, ok)

	p = ParseProperty("GEO:37.386013;-122.082932")
	assert.Equal(t, GeoValue{Lat: 37.386013, Lon: -122.082932}, p.Value)

	p = ParseProperty("GEO:37.386013")
	assert.ErrorIs(t, p.Err, ErrInvalidValue)

	p = ParseProperty("PRIORITY:-1")
	assert.ErrorIs(t, p.Err, ErrOutOfRange)

	p = ParseProperty("SEQUENCE:3")
	n, ok := p.Int()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	p = ParseProperty("STATUS:confirmed")
	assert.Equal(t, StatusValue(StatusConfirmed), p.Value)

	p = ParseProperty("STATUS:MAYBE")
	assert.ErrorIs(t, p.Err, ErrUnknownEnum)

	p = ParseProperty("TRANSP:TRANSPARENT")
	assert.Equal(t, TranspValue(TranspTransparent), p.Value)

	p = ParseProperty("ACTION:DISPLAY")
	assert.Equal(t, ActionValue(ActionDisplay), p.Value)

	p = ParseProperty("CALSCALE:JULIAN")
	assert.True(t, p.HasError())

	p = ParseProperty("VERSION:2.0")
	assert.NoError(t, p.Err)

	p = ParseProperty("VERSION:1.0")
	assert.True(t, p.HasError())

	p = ParseProperty(`SUMMARY:Lunch\, then talk\nnotes\; more`)
	assert.Equal(t, "Lunch, then talk\nnotes; more", p.Text())

	p = ParseProperty(`CATEGORIES:WORK,A\,B`)
	assert.Equal(t, TextListValue{"WORK", "A,B"}, p.Value)

	p = ParseProperty("TZOFFSETTO:-0130")
	assert.Equal(t, IntValue(-5400), p.Value)

	p = ParseProperty("TZOFFSETFROM:0100")
	assert.ErrorIs(t, p.Err, ErrInvalidValue)

	p = ParseProperty("NAME-I-DO-NOT-KNOW:raw;value")
	require.NoError(t, p.Err)
	assert.Equal(t, PropUnknown, p.Kind)
	assert.Equal(t, TextValue("raw;value"), p.Value)
}

func TestParsePropertyRRule(t *testing.T) {
	p := ParseProperty("RRULE:FREQ=WEEKLY;COUNT=3;BYDAY=MO,FR")
	require.NoError(t, p.Err)
	assert.Nil(t, p.Value)
	require.Len(t, p.Params, 3)
	for _, prm := range p.Params {
		assert.True(t, prm.Kind.IsRuleField(), prm.Name)
	}
	count, ok := p.Param(ParamCount)
	require.True(t, ok)
	assert.Equal(t, []int{3}, count.Ints())

	p = ParseProperty("RRULE:FREQ=MONTHLY;BYMONTHDAY=32")
	assert.True(t, p.HasError())
	assert.ErrorIs(t, p.Err, ErrOutOfRange)
}

func TestParsePropertyFailedParameter(t *testing.T) {
	p := ParseProperty("ATTENDEE;RSVP=PERHAPS:mailto:a@example.com")
	assert.ErrorIs(t, p.Err, ErrInvalidValue)
}

func TestParseDuration(t *testing.T) {
	good := map[string]Duration{
		"P1W":          {Weeks: 1},
		"-PT15M":       {Negative: true, Minutes: 15},
		"+P1DT2H":      {Days: 1, Hours: 2},
		"PT0S":         {},
		"P15DT5H0M20S": {Days: 15, Hours: 5, Seconds: 20},
	}
	for in, want := range good {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "P", "PT", "P1H", "1D", "P1W2D", "PT1S2M", "PxD", "P1DT"} {
		_, err := ParseDuration(in)
		assert.ErrorIs(t, err, ErrInvalidValue, in)
	}

	assert.Equal(t, "P1DT2H", Duration{Days: 1, Hours: 2}.String())
	assert.Equal(t, "-PT15M", Duration{Negative: true, Minutes: 15}.String())
	assert.Equal(t, "PT0S", Duration{}.String())

	assert.Equal(t, "-PT15M", DurationOf(-900).String())
	assert.Equal(t, "P1DT1H1S", DurationOf(90061).String())
}

func TestDurationAddToAcrossDST(t *testing.T) {
	berlin, err := caltime.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	start := caltime.NewDateTime(2024, time.March, 30, 10, 0, 0, berlin)

	oneDay := Duration{Days: 1}.AddTo(start)
	hh, _, _ := oneDay.Clock()
	assert.Equal(t, 10, hh)

	exact := Duration{Hours: 24}.AddTo(start)
	hh, _, _ = exact.Clock()
	assert.Equal(t, 11, hh)

	date := Duration{Weeks: 1}.AddTo(caltime.NewDate(2024, time.January, 1))
	assert.True(t, date.IsDate())
	assert.Equal(t, "20240108", date.String())
}
