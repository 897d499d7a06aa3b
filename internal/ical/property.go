package ical

import (
	"fmt"
	"strconv"
	"strings"

	"calimport/internal/caltime"
)

// PropKind identifies a Property.
type PropKind int

const (
	PropUnknown PropKind = iota

	PropCalScale
	PropMethod
	PropProdID
	PropVersion

	PropAttach
	PropCategories
	PropClass
	PropComment
	PropDescription
	PropGeo
	PropLocation
	PropPercentComplete
	PropPriority
	PropResources
	PropStatus
	PropSummary

	PropCompleted
	PropDtEnd
	PropDue
	PropDtStart
	PropDuration
	PropFreeBusy
	PropTransp

	PropTZID
	PropTZName
	PropTZOffsetFrom
	PropTZOffsetTo
	PropTZURL

	PropAttendee
	PropContact
	PropOrganizer
	PropRecurrenceID
	PropRelatedTo
	PropURL
	PropUID

	PropExDate
	PropRDate
	PropRRule

	PropAction
	PropRepeat
	PropTrigger

	PropCreated
	PropDtStamp
	PropLastModified
	PropSequence

	PropRequestStatus
)

var propNames = newEnumTable(map[PropKind]string{
	PropCalScale:        "CALSCALE",
	PropMethod:          "METHOD",
	PropProdID:          "PRODID",
	PropVersion:         "VERSION",
	PropAttach:          "ATTACH",
	PropCategories:      "CATEGORIES",
	PropClass:           "CLASS",
	PropComment:         "COMMENT",
	PropDescription:     "DESCRIPTION",
	PropGeo:             "GEO",
	PropLocation:        "LOCATION",
	PropPercentComplete: "PERCENT-COMPLETE",
	PropPriority:        "PRIORITY",
	PropResources:       "RESOURCES",
	PropStatus:          "STATUS",
	PropSummary:         "SUMMARY",
	PropCompleted:       "COMPLETED",
	PropDtEnd:           "DTEND",
	PropDue:             "DUE",
	PropDtStart:         "DTSTART",
	PropDuration:        "DURATION",
	PropFreeBusy:        "FREEBUSY",
	PropTransp:          "TRANSP",
	PropTZID:            "TZID",
	PropTZName:          "TZNAME",
	PropTZOffsetFrom:    "TZOFFSETFROM",
	PropTZOffsetTo:      "TZOFFSETTO",
	PropTZURL:           "TZURL",
	PropAttendee:        "ATTENDEE",
	PropContact:         "CONTACT",
	PropOrganizer:       "ORGANIZER",
	PropRecurrenceID:    "RECURRENCE-ID",
	PropRelatedTo:       "RELATED-TO",
	PropURL:             "URL",
	PropUID:             "UID",
	PropExDate:          "EXDATE",
	PropRDate:           "RDATE",
	PropRRule:           "RRULE",
	PropAction:          "ACTION",
	PropRepeat:          "REPEAT",
	PropTrigger:         "TRIGGER",
	PropCreated:         "CREATED",
	PropDtStamp:         "DTSTAMP",
	PropLastModified:    "LAST-MODIFIED",
	PropSequence:        "SEQUENCE",
	PropRequestStatus:   "REQUEST-STATUS",
})

func (k PropKind) String() string {
	if n := propNames.name(k); n != "" {
		return n
	}
	return "UNKNOWN"
}

// LookupPropKind maps a property name to its kind; unknown names give
// PropUnknown.
func LookupPropKind(name string) PropKind {
	k, _ := propNames.lookup(name)
	return k
}

// Property is one parsed content line.
//
// For RRULE, Value is nil and the rule fields are part of Params (their
// Kind.IsRuleField reports true).
type Property struct {
	Kind   PropKind
	Name   string
	Value  Value
	Params []Parameter
	Raw    string
	Err    error
}

func (p Property) HasError() bool { return p.Err != nil }

// Param returns the first parameter of the given kind.
func (p Property) Param(kind ParamKind) (Parameter, bool) {
	for _, prm := range p.Params {
		if prm.Kind == kind {
			return prm, true
		}
	}
	return Parameter{}, false
}

// Text returns a textual rendering of the payload.
func (p Property) Text() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case TextValue:
		return string(v)
	case TextListValue:
		return strings.Join(v, ",")
	case DateTimeValue:
		return v.String()
	case DurationValue:
		return Duration(v).String()
	case IntValue:
		return strconv.Itoa(int(v))
	case StatusValue:
		return Status(v).String()
	case TranspValue:
		return Transparency(v).String()
	case ActionValue:
		return Action(v).String()
	}
	return p.Raw
}

// DateTime returns the payload of a single date or date-time property.
func (p Property) DateTime() (caltime.DateTime, bool) {
	v, ok := p.Value.(DateTimeValue)
	return v.DateTime, ok
}

// Duration returns the payload of a duration property.
func (p Property) Duration() (Duration, bool) {
	v, ok := p.Value.(DurationValue)
	return Duration(v), ok
}

// Int returns the payload of an integer property.
func (p Property) Int() (int, bool) {
	v, ok := p.Value.(IntValue)
	return int(v), ok
}

// DateTimes returns the payload of EXDATE/RDATE as a list regardless of
// whether one or several values were given.
func (p Property) DateTimes() []caltime.DateTime {
	switch v := p.Value.(type) {
	case DateTimeValue:
		return []caltime.DateTime{v.DateTime}
	case DateTimeListValue:
		return []caltime.DateTime(v)
	}
	return nil
}

type propHandler func(value string, params []Parameter) (Value, error)

var propHandlers map[PropKind]propHandler

func init() {
	propHandlers = map[PropKind]propHandler{
		PropDtStart:         parseDateTimeProp,
		PropDtEnd:           parseDateTimeProp,
		PropCompleted:       parseDateTimeProp,
		PropCreated:         parseDateTimeProp,
		PropDtStamp:         parseDateTimeProp,
		PropDue:             parseDateTimeProp,
		PropLastModified:    parseDateTimeProp,
		PropRecurrenceID:    parseDateTimeProp,
		PropExDate:          parseDateListProp,
		PropRDate:           parseRDateProp,
		PropDuration:        parseDurationProp,
		PropTrigger:         parseTriggerProp,
		PropGeo:             parseGeoProp,
		PropPriority:        parseNonNegative,
		PropSequence:        parseNonNegative,
		PropRepeat:          parseNonNegative,
		PropPercentComplete: parseNonNegative,
		PropStatus:          parseStatusProp,
		PropTransp:          parseTranspProp,
		PropAction:          parseActionProp,
		PropCalScale:        exactToken("GREGORIAN"),
		PropVersion:         exactToken("2.0"),
		PropCategories:      parseTextListProp,
		PropResources:       parseTextListProp,
		PropSummary:         parseTextProp,
		PropDescription:     parseTextProp,
		PropLocation:        parseTextProp,
		PropComment:         parseTextProp,
		PropContact:         parseTextProp,
		PropTZName:          parseTextProp,
		PropTZOffsetFrom:    parseUTCOffset,
		PropTZOffsetTo:      parseUTCOffset,
	}
}

// ParseProperty tokenizes and parses one unfolded content line.
func ParseProperty(line string) Property {
	p := ParseContentLine(Tokenize(line))
	p.Raw = line
	return p
}

// ParseContentLine parses an already tokenized line. A failing parameter
// fails the whole property.
func ParseContentLine(cl ContentLine) Property {
	p := Property{Kind: LookupPropKind(cl.Name), Name: cl.Name}
	if cl.Name == "" {
		p.Err = fmt.Errorf("%w: empty property name", ErrInvalidValue)
		return p
	}

	p.Params = make([]Parameter, 0, len(cl.Params)+len(cl.RuleFields))
	for _, tok := range cl.Params {
		p.Params = append(p.Params, ParseParameter(tok, false))
	}
	for _, tok := range cl.RuleFields {
		p.Params = append(p.Params, ParseParameter(tok, true))
	}
	for _, prm := range p.Params {
		if prm.HasError() {
			p.Err = fmt.Errorf("%s: %w", p.Name, prm.Err)
			return p
		}
	}

	if p.Kind == PropRRule {
		return p
	}
	handler, ok := propHandlers[p.Kind]
	if !ok {
		p.Value = TextValue(cl.Value)
		return p
	}
	v, err := handler(cl.Value, p.Params)
	if err != nil {
		p.Err = fmt.Errorf("%s: %w", p.Name, err)
		return p
	}
	p.Value = v
	return p
}

func valueType(params []Parameter) string {
	for _, prm := range params {
		if prm.Kind == ParamValue {
			return prm.Text()
		}
	}
	return ""
}

// parseDateTimeChecked parses a DATE or DATE-TIME and checks it against
// an explicit VALUE parameter.
func parseDateTimeChecked(s, vt string) (caltime.DateTime, error) {
	dt, err := caltime.Parse(strings.TrimSpace(s))
	if err != nil {
		return caltime.DateTime{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	switch {
	case vt == "DATE" && !dt.IsDate():
		return caltime.DateTime{}, fmt.Errorf("%w: VALUE=DATE with date-time %q", ErrInvalidValue, s)
	case vt == "DATE-TIME" && dt.IsDate():
		return caltime.DateTime{}, fmt.Errorf("%w: VALUE=DATE-TIME with date %q", ErrInvalidValue, s)
	}
	return dt, nil
}

func parseDateTimeProp(s string, params []Parameter) (Value, error) {
	dt, err := parseDateTimeChecked(s, valueType(params))
	if err != nil {
		return nil, err
	}
	return DateTimeValue{dt}, nil
}

func parseDateListProp(s string, params []Parameter) (Value, error) {
	vt := valueType(params)
	parts := strings.Split(s, ",")
	list := make(DateTimeListValue, 0, len(parts))
	for _, part := range parts {
		dt, err := parseDateTimeChecked(part, vt)
		if err != nil {
			return nil, err
		}
		list = append(list, dt)
	}
	if len(list) == 1 {
		return DateTimeValue{list[0]}, nil
	}
	return list, nil
}

// parseRDateProp keeps PERIOD values as text; everything else behaves like
// EXDATE.
func parseRDateProp(s string, params []Parameter) (Value, error) {
	if valueType(params) == "PERIOD" {
		return TextValue(s), nil
	}
	return parseDateListProp(s, params)
}

func parseDurationProp(s string, _ []Parameter) (Value, error) {
	d, err := ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return DurationValue(d), nil
}

// parseTriggerProp accepts a duration, or an absolute date-time when the
// value carries no P marker.
func parseTriggerProp(s string, params []Parameter) (Value, error) {
	s = strings.TrimSpace(s)
	if valueType(params) != "DATE-TIME" && strings.ContainsAny(s, "Pp") {
		return parseDurationProp(s, params)
	}
	dt, err := parseDateTimeChecked(s, "")
	if err != nil {
		return nil, err
	}
	return DateTimeValue{dt}, nil
}

func parseGeoProp(s string, _ []Parameter) (Value, error) {
	lat, lon, ok := strings.Cut(s, ";")
	if !ok || strings.Contains(lon, ";") {
		return nil, fmt.Errorf("%w: geo %q", ErrInvalidValue, s)
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: geo %q", ErrInvalidValue, s)
	}
	return GeoValue{Lat: la, Lon: lo}, nil
}

func parseNonNegative(s string, _ []Parameter) (Value, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: integer %q", ErrInvalidValue, s)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return IntValue(n), nil
}

func parseStatusProp(s string, _ []Parameter) (Value, error) {
	st, ok := statuses.lookup(s)
	if !ok {
		return nil, fmt.Errorf("%w: status %q", ErrUnknownEnum, s)
	}
	return StatusValue(st), nil
}

func parseTranspProp(s string, _ []Parameter) (Value, error) {
	t, ok := transparencies.lookup(s)
	if !ok {
		return nil, fmt.Errorf("%w: transparency %q", ErrUnknownEnum, s)
	}
	return TranspValue(t), nil
}

func parseActionProp(s string, _ []Parameter) (Value, error) {
	a, ok := actions.lookup(s)
	if !ok {
		return nil, fmt.Errorf("%w: action %q", ErrUnknownEnum, s)
	}
	return ActionValue(a), nil
}

func exactToken(want string) propHandler {
	return func(s string, _ []Parameter) (Value, error) {
		if !strings.EqualFold(strings.TrimSpace(s), want) {
			return nil, fmt.Errorf("%w: %q, want %s", ErrUnknownEnum, s, want)
		}
		return TextValue(want), nil
	}
}

func parseTextProp(s string, _ []Parameter) (Value, error) {
	return TextValue(UnescapeText(s)), nil
}

func parseTextListProp(s string, _ []Parameter) (Value, error) {
	parts := splitList(s)
	out := make(TextListValue, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, UnescapeText(part))
		}
	}
	return out, nil
}

// parseUTCOffset reads [+-]HHMM[SS] into signed seconds east of UTC.
func parseUTCOffset(s string, _ []Parameter) (Value, error) {
	s = strings.TrimSpace(s)
	bad := fmt.Errorf("%w: utc offset %q", ErrInvalidValue, s)
	if (len(s) != 5 && len(s) != 7) || (s[0] != '+' && s[0] != '-') {
		return nil, bad
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, bad
		}
	}
	hh, _ := strconv.Atoi(s[1:3])
	mm, _ := strconv.Atoi(s[3:5])
	ss := 0
	if len(s) == 7 {
		ss, _ = strconv.Atoi(s[5:7])
	}
	if hh > 23 || mm > 59 || ss > 59 {
		return nil, fmt.Errorf("%w: utc offset %q", ErrOutOfRange, s)
	}
	secs := hh*3600 + mm*60 + ss
	if s[0] == '-' {
		secs = -secs
	}
	return IntValue(secs), nil
}
