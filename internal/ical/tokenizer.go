package ical

import "strings"

// ContentLine is one logical line split into its parts.
//
// For RRULE the value region is a list of rule fields rather than a value,
// so Value stays empty and the fields land in RuleFields.
type ContentLine struct {
	Name       string
	Value      string
	Params     []string
	RuleFields []string
}

// Tokenize splits an already unfolded content line of the form
// NAME[;PARAM=...]*:VALUE. Delimiters inside double quotes are literal.
// A line without an unquoted colon yields a bare name and no value.
func Tokenize(line string) ContentLine {
	head, value, hasValue := cutUnquoted(line, ':')

	parts := splitUnquoted(head, ';')
	cl := ContentLine{Name: strings.ToUpper(strings.TrimSpace(parts[0]))}
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			cl.Params = append(cl.Params, p)
		}
	}
	if !hasValue {
		return cl
	}

	if cl.Name == "RRULE" {
		for _, f := range splitUnquoted(value, ';') {
			if f = strings.TrimSpace(f); f != "" {
				cl.RuleFields = append(cl.RuleFields, f)
			}
		}
		return cl
	}
	cl.Value = value
	return cl
}

// cutUnquoted splits s around the first sep that is not inside quotes.
func cutUnquoted(s string, sep byte) (before, after string, found bool) {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// splitUnquoted splits s on every sep outside quoted spans. Quoted spans are
// kept whole in the token they belong to.
func splitUnquoted(s string, sep byte) []string {
	var out []string
	for {
		before, after, found := cutUnquoted(s, sep)
		out = append(out, before)
		if !found {
			return out
		}
		s = after
	}
}
