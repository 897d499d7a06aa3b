package ical

import "errors"

var (
	// ErrInvalidValue marks a value that does not follow its grammar.
	ErrInvalidValue = errors.New("ical: invalid value")
	// ErrOutOfRange marks a numeric argument outside its allowed range.
	ErrOutOfRange = errors.New("ical: value out of range")
	// ErrUnknownEnum marks a token missing from a closed enumeration.
	ErrUnknownEnum = errors.New("ical: unknown enumeration token")
)
