package ical

import "strings"

// enumTable is a bidirectional mapping between an enumeration and its
// iCalendar tokens. Tables are built once at package init.
type enumTable[T comparable] struct {
	names  map[T]string
	values map[string]T
}

func newEnumTable[T comparable](names map[T]string) enumTable[T] {
	values := make(map[string]T, len(names))
	for v, n := range names {
		values[n] = v
	}
	return enumTable[T]{names: names, values: values}
}

func (e enumTable[T]) name(v T) string { return e.names[v] }

// lookup matches case-insensitively.
func (e enumTable[T]) lookup(token string) (T, bool) {
	v, ok := e.values[strings.ToUpper(strings.TrimSpace(token))]
	return v, ok
}
