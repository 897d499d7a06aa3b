package recurrence

import (
	"slices"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calimport/internal/caltime"
)

func strs(dts []caltime.DateTime) []string {
	out := make([]string, len(dts))
	for i, d := range dts {
		out[i] = d.String()
	}
	return out
}

func expand(t *testing.T, rule Rule, start string, opts ...Option) []string {
	t.Helper()
	got, err := NewEngine(opts...).Expand(rule, caltime.MustParse(start))
	require.NoError(t, err)
	return strs(got)
}

func TestDailyCount(t *testing.T) {
	rule := Rule{Frequency: FrequencyDaily, Interval: 1, Count: mo.Some(5)}
	assert.Equal(t,
		[]string{"20240101", "20240102", "20240103", "20240104", "20240105"},
		expand(t, rule, "20240101"))
}

func TestSimpleForms(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		start string
		want  []string
	}{
		{
			name:  "weekly interval 2",
			rule:  Rule{Frequency: FrequencyWeekly, Interval: 2, Count: mo.Some(3)},
			start: "20240101T090000Z",
			want:  []string{"20240101T090000Z", "20240115T090000Z", "20240129T090000Z"},
		},
		{
			name:  "monthly on the 31st skips short months",
			rule:  Rule{Frequency: FrequencyMonthly, Count: mo.Some(4)},
			start: "20240131",
			want:  []string{"20240131", "20240331", "20240531", "20240731"},
		},
		{
			name:  "yearly on 29 february",
			rule:  Rule{Frequency: FrequencyYearly, Count: mo.Some(3)},
			start: "20240229",
			want:  []string{"20240229", "20280229", "20320229"},
		},
		{
			name:  "until is inclusive",
			rule:  Rule{Frequency: FrequencyDaily, Until: mo.Some(caltime.MustParse("20240103T090000Z"))},
			start: "20240101T090000Z",
			want:  []string{"20240101T090000Z", "20240102T090000Z", "20240103T090000Z"},
		},
		{
			name:  "date until against date-time start",
			rule:  Rule{Frequency: FrequencyDaily, Until: mo.Some(caltime.MustParse("20240102"))},
			start: "20240101T230000",
			want:  []string{"20240101T230000", "20240102T230000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.rule.Simple())
			assert.Equal(t, tt.want, expand(t, tt.rule, tt.start))
		})
	}
}

func TestYearlyLeapDaySkipsNonLeapYears(t *testing.T) {
	rule := Rule{Frequency: FrequencyYearly, ByMonth: []int{2}, ByMonthDay: []int{29}}
	got := expand(t, rule, "20240229", WithHorizon(caltime.NewDate(2036, time.December, 31)))
	assert.Equal(t, []string{"20240229", "20280229", "20320229", "20360229"}, got)
}

func TestMonthlyLastFriday(t *testing.T) {
	rule := Rule{Frequency: FrequencyMonthly, ByDay: map[time.Weekday][]int{time.Friday: {-1}}, Count: mo.Some(12)}
	got, err := NewEngine().Expand(rule, caltime.MustParse("20240101T170000Z"))
	require.NoError(t, err)
	require.Len(t, got, 12)
	for _, d := range got {
		assert.Equal(t, time.Friday, d.Weekday(), d.String())
		assert.Greater(t, d.Day()+7, caltime.DaysIn(d.Year(), d.Month()), "not the last Friday: %s", d)
	}
	assert.Equal(t, "20240126T170000Z", got[0].String())
	assert.Equal(t, "20240223T170000Z", got[1].String())
	assert.Equal(t, "20240329T170000Z", got[2].String())
}

func TestBySetPosLastWorkday(t *testing.T) {
	workdays := map[time.Weekday][]int{
		time.Monday: {0}, time.Tuesday: {0}, time.Wednesday: {0}, time.Thursday: {0}, time.Friday: {0},
	}

	weekly := Rule{Frequency: FrequencyWeekly, ByDay: workdays, BySetPos: []int{-1}, Count: mo.Some(3)}
	assert.Equal(t, []string{"20240105", "20240112", "20240119"}, expand(t, weekly, "20240101"))

	monthly := Rule{Frequency: FrequencyMonthly, ByDay: workdays, BySetPos: []int{-1}, Count: mo.Some(3)}
	assert.Equal(t, []string{"20240131", "20240229", "20240329"}, expand(t, monthly, "20240101"))
}

func TestWeeklyByDay(t *testing.T) {
	rule := Rule{
		Frequency: FrequencyWeekly,
		ByDay:     map[time.Weekday][]int{time.Tuesday: {0}, time.Thursday: {0}},
		Count:     mo.Some(4),
	}
	assert.Equal(t,
		[]string{"20240102T100000", "20240104T100000", "20240109T100000", "20240111T100000"},
		expand(t, rule, "20240102T100000"))
}

func TestWeekStartChangesPeriods(t *testing.T) {
	byDay := map[time.Weekday][]int{time.Tuesday: {0}, time.Sunday: {0}}
	mo1 := Rule{Frequency: FrequencyWeekly, Interval: 2, ByDay: byDay, Count: mo.Some(4)}
	su := mo1
	su.WeekStart = mo.Some(time.Sunday)

	assert.Equal(t, []string{"19970805", "19970810", "19970819", "19970824"}, expand(t, mo1, "19970805"))
	assert.Equal(t, []string{"19970805", "19970817", "19970819", "19970831"}, expand(t, su, "19970805"))
}

func TestDailyFilters(t *testing.T) {
	rule := Rule{
		Frequency:  FrequencyDaily,
		ByMonth:    []int{1},
		ByMonthDay: []int{1, -1},
	}
	got := expand(t, rule, "20240101", WithHorizon(caltime.NewDate(2025, time.December, 31)))
	assert.Equal(t, []string{"20240101", "20240131", "20250101", "20250131"}, got)
}

func TestByHourExpandsTimes(t *testing.T) {
	rule := Rule{Frequency: FrequencyDaily, ByHour: []int{17, 9}, ByMinute: []int{30}, Count: mo.Some(3)}
	assert.Equal(t,
		[]string{"20240101T093000Z", "20240101T173000Z", "20240102T093000Z"},
		expand(t, rule, "20240101T080000Z"))

	dated := Rule{Frequency: FrequencyDaily, ByHour: []int{9}, Count: mo.Some(2)}
	assert.Equal(t, []string{"20240101", "20240102"}, expand(t, dated, "20240101"))
}

func TestYearlyByWeekNo(t *testing.T) {
	rule := Rule{Frequency: FrequencyYearly, ByWeekNo: []int{20}, ByDay: map[time.Weekday][]int{time.Monday: {0}}, Count: mo.Some(3)}
	assert.Equal(t, []string{"19970512T090000", "19980511T090000", "19990517T090000"}, expand(t, rule, "19970512T090000"))
}

func TestYearlyByWeekNoCrossesYearBoundary(t *testing.T) {
	monday := map[time.Weekday][]int{time.Monday: {0}}

	rule := Rule{Frequency: FrequencyYearly, ByWeekNo: []int{1}, ByDay: monday, Count: mo.Some(3)}
	assert.Equal(t, []string{"20240101", "20241230", "20251229"}, expand(t, rule, "20240101"))

	rule = Rule{Frequency: FrequencyYearly, ByWeekNo: []int{1}, Count: mo.Some(7)}
	assert.Equal(t, []string{
		"20250101", "20250102", "20250103", "20250104", "20250105",
		"20251229", "20251230",
	}, expand(t, rule, "20250101"))

	rule = Rule{Frequency: FrequencyYearly, ByWeekNo: []int{1}, ByDay: monday, Until: mo.Some(caltime.MustParse("20241231"))}
	assert.Equal(t, []string{"20240101", "20241230"}, expand(t, rule, "20240101"))
}

func TestDailyByWeekNoChecksAdjacentYears(t *testing.T) {
	rule := Rule{Frequency: FrequencyDaily, ByWeekNo: []int{1}, Count: mo.Some(7)}
	assert.Equal(t, []string{
		"20241230", "20241231", "20250101", "20250102", "20250103", "20250104", "20250105",
	}, expand(t, rule, "20241225"))
}

func TestYearlyByYearDay(t *testing.T) {
	rule := Rule{Frequency: FrequencyYearly, ByYearDay: []int{1, 100, -1}, Count: mo.Some(4)}
	assert.Equal(t, []string{"20240101", "20240409", "20241231", "20250101"}, expand(t, rule, "20240101"))
}

func TestYearlyByMonthByDay(t *testing.T) {
	// second Sunday of March
	rule := Rule{
		Frequency: FrequencyYearly,
		ByMonth:   []int{3},
		ByDay:     map[time.Weekday][]int{time.Sunday: {2}},
		Count:     mo.Some(2),
	}
	assert.Equal(t, []string{"20240310", "20250309"}, expand(t, rule, "20240101"))
}

func TestExceptionsAndCount(t *testing.T) {
	rule := Rule{
		Frequency: FrequencyDaily,
		Count:     mo.Some(5),
		Exceptions: []caltime.DateTime{
			caltime.MustParse("20240102T090000Z"),
			caltime.MustParse("20240104"),
		},
	}
	assert.Equal(t,
		[]string{"20240101T090000Z", "20240103T090000Z", "20240105T090000Z"},
		expand(t, rule, "20240101T090000Z"))
}

func TestCountUntilAndExceptionsBound(t *testing.T) {
	until := caltime.MustParse("20240630")
	ex := caltime.MustParse("20240315")
	rules := []Rule{
		{Frequency: FrequencyDaily, Until: mo.Some(until), Exceptions: []caltime.DateTime{ex}},
		{Frequency: FrequencyWeekly, ByDay: map[time.Weekday][]int{time.Friday: {0}}, Until: mo.Some(until), Exceptions: []caltime.DateTime{ex}},
		{Frequency: FrequencyMonthly, ByMonthDay: []int{15, -1}, Until: mo.Some(until), Exceptions: []caltime.DateTime{ex}},
		{Frequency: FrequencyMonthly, ByMonthDay: []int{15}, Count: mo.Some(7)},
		{Frequency: FrequencyYearly, ByMonth: []int{1, 3}, ByMonthDay: []int{15}, Count: mo.Some(5), Exceptions: []caltime.DateTime{ex}},
	}
	for _, rule := range rules {
		got, err := NewEngine().Expand(rule, caltime.MustParse("20240101"))
		require.NoError(t, err)
		require.NotEmpty(t, got)
		if n, ok := rule.Count.Get(); ok {
			assert.LessOrEqual(t, len(got), n)
		}
		assert.True(t, slices.IsSortedFunc(got, func(a, b caltime.DateTime) int { return a.Compare(b) }))
		for _, d := range got {
			if u, ok := rule.Until.Get(); ok {
				assert.False(t, d.After(u), d.String())
			}
			assert.False(t, rule.IsException(d), d.String())
		}
	}
}

func TestCountIsExact(t *testing.T) {
	rule := Rule{Frequency: FrequencyMonthly, ByMonthDay: []int{1, 15}, Count: mo.Some(7)}
	got := expand(t, rule, "20240101")
	assert.Len(t, got, 7)
	assert.Equal(t, "20240401", got[6])
}

func TestStartBeforeFirstMatchIsNotEmitted(t *testing.T) {
	rule := Rule{Frequency: FrequencyWeekly, ByDay: map[time.Weekday][]int{time.Friday: {0}}, Count: mo.Some(2)}
	assert.Equal(t, []string{"20240105", "20240112"}, expand(t, rule, "20240101"))
}

func TestHorizonAndCap(t *testing.T) {
	rule := Rule{Frequency: FrequencyYearly}
	got := expand(t, rule, "20300101")
	assert.Len(t, got, 8)
	assert.Equal(t, "20370101", got[len(got)-1])

	got = expand(t, Rule{Frequency: FrequencyDaily}, "20240101", WithMaxOccurrences(10))
	assert.Len(t, got, 10)
}

func TestAllIsLazy(t *testing.T) {
	var seen []string
	for d := range NewEngine().All(Rule{Frequency: FrequencyDaily}, caltime.MustParse("20240101")) {
		seen = append(seen, d.String())
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"20240101", "20240102", "20240103"}, seen)

	bad := Rule{Frequency: FrequencyDaily, Count: mo.Some(1), Until: mo.Some(caltime.MustParse("20240101"))}
	for range NewEngine().All(bad, caltime.MustParse("20240101")) {
		t.Fatal("invalid rule yielded")
	}
}

func TestRuleErrors(t *testing.T) {
	start := caltime.MustParse("20240101")
	_, err := NewEngine().Expand(Rule{Frequency: FrequencyDaily, Count: mo.Some(1), Until: mo.Some(start)}, start)
	assert.ErrorIs(t, err, ErrCountAndUntil)

	_, err = NewEngine().Expand(Rule{Frequency: FrequencyDaily, Interval: -1}, start)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewEngine().Expand(Rule{}, start)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestZoneBoundStartKeepsWallClock(t *testing.T) {
	berlin, err := caltime.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	start := caltime.NewDateTime(2024, time.March, 29, 9, 0, 0, berlin)
	got, err := NewEngine().Expand(Rule{Frequency: FrequencyDaily, Count: mo.Some(3)}, start)
	require.NoError(t, err)
	for _, d := range got {
		hh, _, _ := d.Clock()
		assert.Equal(t, 9, hh, d.Time().String())
	}
}
