package ical

import (
	"strconv"
	"strings"
	"time"

	"calimport/internal/caltime"
)

// Value is the typed payload of a Parameter or Property. A nil Value means
// the carrier has no payload (RRULE keeps everything in its parameters).
type Value interface {
	value()
}

type (
	TextValue         string
	BoolValue         bool
	IntValue          int
	IntListValue      []int
	TextListValue     []string
	DateTimeListValue []caltime.DateTime
	WeekdayValue      time.Weekday
	WeekdayNumsValue  []WeekdayNum
	FrequencyValue    Frequency
	StatusValue       Status
	TranspValue       Transparency
	ActionValue       Action
	DurationValue     Duration
)

// DateTimeValue carries a single DATE or DATE-TIME.
type DateTimeValue struct{ caltime.DateTime }

// GeoValue is the latitude/longitude pair of GEO.
type GeoValue struct {
	Lat, Lon float64
}

// ZoneValue is a TZID that resolved through the time zone database.
type ZoneValue struct {
	Name     string
	Location *time.Location
}

// EnumValue is a token of an open enumeration; Known is false for tokens
// outside the registered set (x-names, iana-tokens).
type EnumValue struct {
	Token string
	Known bool
}

func (TextValue) value()         {}
func (BoolValue) value()         {}
func (IntValue) value()          {}
func (IntListValue) value()      {}
func (TextListValue) value()     {}
func (DateTimeValue) value()     {}
func (DateTimeListValue) value() {}
func (WeekdayValue) value()      {}
func (WeekdayNumsValue) value()  {}
func (FrequencyValue) value()    {}
func (StatusValue) value()       {}
func (TranspValue) value()       {}
func (ActionValue) value()       {}
func (DurationValue) value()     {}
func (GeoValue) value()          {}
func (ZoneValue) value()         {}
func (EnumValue) value()         {}

// WeekdayNum is one BYDAY entry. Ordinal 0 means every such weekday.
type WeekdayNum struct {
	Ordinal int
	Day     time.Weekday
}

func (w WeekdayNum) String() string {
	if w.Ordinal == 0 {
		return caltime.WeekdayCode(w.Day)
	}
	return strconv.Itoa(w.Ordinal) + caltime.WeekdayCode(w.Day)
}

// Frequency is the FREQ rule part.
type Frequency int

const (
	FreqUnset Frequency = iota
	FreqSecondly
	FreqMinutely
	FreqHourly
	FreqDaily
	FreqWeekly
	FreqMonthly
	FreqYearly
)

var frequencies = newEnumTable(map[Frequency]string{
	FreqSecondly: "SECONDLY",
	FreqMinutely: "MINUTELY",
	FreqHourly:   "HOURLY",
	FreqDaily:    "DAILY",
	FreqWeekly:   "WEEKLY",
	FreqMonthly:  "MONTHLY",
	FreqYearly:   "YEARLY",
})

func (f Frequency) String() string { return frequencies.name(f) }

// Status is the STATUS property.
type Status int

const (
	StatusTentative Status = iota + 1
	StatusConfirmed
	StatusCancelled
	StatusNeedsAction
	StatusCompleted
	StatusInProcess
	StatusDraft
	StatusFinal
)

var statuses = newEnumTable(map[Status]string{
	StatusTentative:   "TENTATIVE",
	StatusConfirmed:   "CONFIRMED",
	StatusCancelled:   "CANCELLED",
	StatusNeedsAction: "NEEDS-ACTION",
	StatusCompleted:   "COMPLETED",
	StatusInProcess:   "IN-PROCESS",
	StatusDraft:       "DRAFT",
	StatusFinal:       "FINAL",
})

func (s Status) String() string { return statuses.name(s) }

// Transparency is the TRANSP property: whether the event blocks busy time.
type Transparency int

const (
	TranspOpaque Transparency = iota + 1
	TranspTransparent
)

var transparencies = newEnumTable(map[Transparency]string{
	TranspOpaque:      "OPAQUE",
	TranspTransparent: "TRANSPARENT",
})

func (t Transparency) String() string { return transparencies.name(t) }

// Action is the VALARM ACTION property.
type Action int

const (
	ActionAudio Action = iota + 1
	ActionDisplay
	ActionEmail
	ActionProcedure
)

var actions = newEnumTable(map[Action]string{
	ActionAudio:     "AUDIO",
	ActionDisplay:   "DISPLAY",
	ActionEmail:     "EMAIL",
	ActionProcedure: "PROCEDURE",
})

func (a Action) String() string { return actions.name(a) }

// splitList splits on commas that are neither escaped nor inside a quoted span.
func splitList(s string) []string {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && !quoted:
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			quoted = !quoted
			cur.WriteByte(c)
		case c == ',' && !quoted:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

// UnescapeText decodes a TEXT value.
func UnescapeText(s string) string { return textUnescaper.Replace(s) }
