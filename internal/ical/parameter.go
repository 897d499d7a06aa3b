package ical

import (
	"fmt"
	"strconv"
	"strings"

	"calimport/internal/caltime"
)

// ParamKind identifies a Parameter.
//
// The kinds form two families that share one representation. Standard
// parameters appear between the property name and the colon. Rule fields
// (FREQ through WKST) only exist inside an RRULE value; ParseParameter keeps
// the two apart so a DTSTART;FREQ=... never turns into a rule.
type ParamKind int

const (
	ParamOther ParamKind = iota

	ParamAltRep
	ParamCN
	ParamCUType
	ParamDelegatedFrom
	ParamDelegatedTo
	ParamDir
	ParamEncoding
	ParamFmtType
	ParamFBType
	ParamLanguage
	ParamMember
	ParamPartStat
	ParamRange
	ParamRelated
	ParamRelType
	ParamRole
	ParamRSVP
	ParamSentBy
	ParamTZID
	ParamValue

	ParamFreq
	ParamUntil
	ParamCount
	ParamInterval
	ParamBySecond
	ParamByMinute
	ParamByHour
	ParamByDay
	ParamByMonthDay
	ParamByYearDay
	ParamByWeekNo
	ParamByMonth
	ParamBySetPos
	ParamWkst
)

// IsRuleField reports whether the kind belongs to the RRULE family.
func (k ParamKind) IsRuleField() bool { return k >= ParamFreq && k <= ParamWkst }

func (k ParamKind) String() string {
	if n := paramNames.name(k); n != "" {
		return n
	}
	return "OTHER"
}

var paramNames = newEnumTable(map[ParamKind]string{
	ParamAltRep:        "ALTREP",
	ParamCN:            "CN",
	ParamCUType:        "CUTYPE",
	ParamDelegatedFrom: "DELEGATED-FROM",
	ParamDelegatedTo:   "DELEGATED-TO",
	ParamDir:           "DIR",
	ParamEncoding:      "ENCODING",
	ParamFmtType:       "FMTTYPE",
	ParamFBType:        "FBTYPE",
	ParamLanguage:      "LANGUAGE",
	ParamMember:        "MEMBER",
	ParamPartStat:      "PARTSTAT",
	ParamRange:         "RANGE",
	ParamRelated:       "RELATED",
	ParamRelType:       "RELTYPE",
	ParamRole:          "ROLE",
	ParamRSVP:          "RSVP",
	ParamSentBy:        "SENT-BY",
	ParamTZID:          "TZID",
	ParamValue:         "VALUE",
	ParamFreq:          "FREQ",
	ParamUntil:         "UNTIL",
	ParamCount:         "COUNT",
	ParamInterval:      "INTERVAL",
	ParamBySecond:      "BYSECOND",
	ParamByMinute:      "BYMINUTE",
	ParamByHour:        "BYHOUR",
	ParamByDay:         "BYDAY",
	ParamByMonthDay:    "BYMONTHDAY",
	ParamByYearDay:     "BYYEARDAY",
	ParamByWeekNo:      "BYWEEKNO",
	ParamByMonth:       "BYMONTH",
	ParamBySetPos:      "BYSETPOS",
	ParamWkst:          "WKST",
})

// Parameter is one NAME=value token of a content line.
type Parameter struct {
	Kind  ParamKind
	Name  string
	Raw   string
	Value Value
	Err   error
}

func (p Parameter) HasError() bool { return p.Err != nil }

func (p Parameter) String() string { return p.Name + "=" + p.Raw }

// Text returns the payload of a text-like parameter.
func (p Parameter) Text() string {
	switch v := p.Value.(type) {
	case TextValue:
		return string(v)
	case EnumValue:
		return v.Token
	case ZoneValue:
		return v.Name
	}
	return p.Raw
}

// Ints returns the payload of a numeric list or single integer parameter.
func (p Parameter) Ints() []int {
	switch v := p.Value.(type) {
	case IntListValue:
		return []int(v)
	case IntValue:
		return []int{int(v)}
	}
	return nil
}

type paramHandler func(arg string) (Value, error)

var (
	standardHandlers map[ParamKind]paramHandler
	ruleHandlers     map[ParamKind]paramHandler
)

func init() {
	standardHandlers = map[ParamKind]paramHandler{
		ParamAltRep:        parseTextParam,
		ParamCN:            parseTextParam,
		ParamDir:           parseTextParam,
		ParamFmtType:       parseTextParam,
		ParamLanguage:      parseTextParam,
		ParamSentBy:        parseTextParam,
		ParamDelegatedFrom: parseTextListParam,
		ParamDelegatedTo:   parseTextListParam,
		ParamMember:        parseTextListParam,
		ParamCUType:        openEnum("INDIVIDUAL", "GROUP", "RESOURCE", "ROOM", "UNKNOWN"),
		ParamEncoding:      openEnum("8BIT", "BASE64"),
		ParamFBType:        openEnum("FREE", "BUSY", "BUSY-UNAVAILABLE", "BUSY-TENTATIVE"),
		ParamPartStat:      openEnum("NEEDS-ACTION", "ACCEPTED", "DECLINED", "TENTATIVE", "DELEGATED", "COMPLETED", "IN-PROCESS"),
		ParamRelType:       openEnum("PARENT", "CHILD", "SIBLING"),
		ParamRole:          openEnum("CHAIR", "REQ-PARTICIPANT", "OPT-PARTICIPANT", "NON-PARTICIPANT"),
		ParamValue: openEnum("BINARY", "BOOLEAN", "CAL-ADDRESS", "DATE", "DATE-TIME", "DURATION",
			"FLOAT", "INTEGER", "PERIOD", "RECUR", "TEXT", "TIME", "URI", "UTC-OFFSET"),
		ParamRelated: closedEnum("START", "END"),
		ParamRange:   closedEnum("THISANDFUTURE"),
		ParamRSVP:    parseBoolParam,
		ParamTZID:    parseTZIDParam,
	}
	ruleHandlers = map[ParamKind]paramHandler{
		ParamFreq:       parseFreq,
		ParamUntil:      parseUntil,
		ParamCount:      positiveInt,
		ParamInterval:   positiveInt,
		ParamBySecond:   intList(0, 60, false),
		ParamByMinute:   intList(0, 59, false),
		ParamByHour:     intList(0, 23, false),
		ParamByMonth:    intList(1, 12, false),
		ParamByMonthDay: intList(1, 31, true),
		ParamByYearDay:  intList(1, 366, true),
		ParamByWeekNo:   intList(1, 53, true),
		ParamBySetPos:   intList(1, 366, true),
		ParamByDay:      parseByDay,
		ParamWkst:       parseWkst,
	}
}

// ParseParameter parses one NAME=arg[,arg...] token. With rule set the token
// is read as an RRULE field, otherwise as a standard parameter. Names outside
// the selected family become ParamOther and never fail.
func ParseParameter(token string, rule bool) Parameter {
	name, arg, hasArg := strings.Cut(token, "=")
	name = strings.ToUpper(strings.TrimSpace(name))
	p := Parameter{Name: name, Raw: arg}

	kind, known := paramNames.lookup(name)
	handlers := standardHandlers
	if rule {
		handlers = ruleHandlers
	}
	handler, ok := handlers[kind]
	if !known || !ok {
		p.Kind = ParamOther
		p.Value = TextValue(unquote(arg))
		return p
	}

	p.Kind = kind
	if !hasArg {
		p.Err = fmt.Errorf("%w: parameter %s has no value", ErrInvalidValue, name)
		return p
	}
	p.Value, p.Err = handler(arg)
	if p.Err != nil {
		p.Err = fmt.Errorf("%s: %w", name, p.Err)
	}
	return p
}

func parseTextParam(arg string) (Value, error) {
	return TextValue(unquote(arg)), nil
}

func parseTextListParam(arg string) (Value, error) {
	parts := splitList(arg)
	out := make(TextListValue, 0, len(parts))
	for _, p := range parts {
		out = append(out, unquote(strings.TrimSpace(p)))
	}
	return out, nil
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// openEnum accepts registered tokens and keeps anything else as an unknown
// token instead of failing.
func openEnum(tokens ...string) paramHandler {
	set := tokenSet(tokens)
	return func(arg string) (Value, error) {
		tok := strings.ToUpper(unquote(strings.TrimSpace(arg)))
		return EnumValue{Token: tok, Known: set[tok]}, nil
	}
}

func closedEnum(tokens ...string) paramHandler {
	set := tokenSet(tokens)
	return func(arg string) (Value, error) {
		tok := strings.ToUpper(unquote(strings.TrimSpace(arg)))
		if !set[tok] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnum, arg)
		}
		return EnumValue{Token: tok, Known: true}, nil
	}
}

func parseBoolParam(arg string) (Value, error) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "TRUE":
		return BoolValue(true), nil
	case "FALSE":
		return BoolValue(false), nil
	}
	return nil, fmt.Errorf("%w: boolean %q", ErrInvalidValue, arg)
}

// parseTZIDParam never fails: an identifier the zone database does not know
// may name a VTIMEZONE defined elsewhere in the same document.
func parseTZIDParam(arg string) (Value, error) {
	name := unquote(strings.TrimSpace(arg))
	if loc, err := caltime.LoadLocation(name); err == nil {
		return ZoneValue{Name: name, Location: loc}, nil
	}
	return TextValue(name), nil
}

func parseFreq(arg string) (Value, error) {
	f, ok := frequencies.lookup(arg)
	if !ok {
		return nil, fmt.Errorf("%w: frequency %q", ErrUnknownEnum, arg)
	}
	return FrequencyValue(f), nil
}

func parseUntil(arg string) (Value, error) {
	dt, err := caltime.Parse(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return DateTimeValue{dt}, nil
}

func positiveInt(arg string) (Value, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("%w: integer %q", ErrInvalidValue, arg)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return IntValue(n), nil
}

// intList parses a comma list of integers in [min,max]; with signed set the
// negated range is accepted too and zero is rejected.
func intList(min, max int, signed bool) paramHandler {
	return func(arg string) (Value, error) {
		parts := strings.Split(arg, ",")
		out := make(IntListValue, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("%w: integer %q", ErrInvalidValue, p)
			}
			abs := n
			if signed && n < 0 {
				abs = -n
			}
			if abs < min || abs > max || (signed && n == 0) {
				return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
			}
			out = append(out, n)
		}
		return out, nil
	}
}

func parseByDay(arg string) (Value, error) {
	parts := strings.Split(arg, ",")
	out := make(WeekdayNumsValue, 0, len(parts))
	for _, p := range parts {
		wn, err := parseWeekdayNum(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, wn)
	}
	return out, nil
}

// parseWeekdayNum reads [+|-][n]XX with |n| in [1,53].
func parseWeekdayNum(s string) (WeekdayNum, error) {
	if len(s) < 2 {
		return WeekdayNum{}, fmt.Errorf("%w: weekday %q", ErrInvalidValue, s)
	}
	day, err := caltime.ParseWeekday(s[len(s)-2:])
	if err != nil {
		return WeekdayNum{}, fmt.Errorf("%w: weekday %q", ErrInvalidValue, s)
	}
	wn := WeekdayNum{Day: day}
	prefix := s[:len(s)-2]
	if prefix == "" {
		return wn, nil
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return WeekdayNum{}, fmt.Errorf("%w: ordinal %q", ErrInvalidValue, s)
	}
	if n == 0 || n < -53 || n > 53 {
		return WeekdayNum{}, fmt.Errorf("%w: ordinal %d", ErrOutOfRange, n)
	}
	wn.Ordinal = n
	return wn, nil
}

func parseWkst(arg string) (Value, error) {
	wd, err := caltime.ParseWeekday(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("%w: week start %q", ErrInvalidValue, arg)
	}
	return WeekdayValue(wd), nil
}
