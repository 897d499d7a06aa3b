package model

import (
	"time"

	"calimport/internal/recurrence"
)

// AppointmentBasics holds the descriptive fields of one VEVENT after
// timezone resolution.
type AppointmentBasics struct {
	SourceID string // calendar source ID (config source ID)
	UID      string // iCalendar UID
	Sequence int

	Summary     string
	Description string
	Location    string

	// Busy is false for TRANSP:TRANSPARENT events.
	Busy   bool
	AllDay bool

	// Start/End of the first instance, already absolute.
	Start time.Time
	End   time.Time
}

// Duration is the length of every instance.
func (b AppointmentBasics) Duration() time.Duration { return b.End.Sub(b.Start) }

// AppointmentAlarm is a VALARM reduced to offsets.
type AppointmentAlarm struct {
	Action      string
	Description string

	// OffsetSeconds is relative to the instance start; negative fires
	// before it.
	OffsetSeconds int64
	Repeat        int
	PauseSeconds  int64
}

// Event is one concrete instance of an appointment.
type Event struct {
	UID    string
	Text   string // display text
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Appointment is the interpreted form of a VEVENT. It is read-only once
// produced.
type Appointment struct {
	Basics     AppointmentBasics
	Recurrence *recurrence.Rule
	Alarms     []AppointmentAlarm
	Events     []Event
}

// Recurring reports whether the appointment carries a rule.
func (a Appointment) Recurring() bool { return a.Recurrence != nil }

// EventsBetween returns the instances overlapping [from, to).
func (a Appointment) EventsBetween(from, to time.Time) []Event {
	var out []Event
	for _, ev := range a.Events {
		end := ev.End
		if end.Equal(ev.Start) {
			end = end.Add(time.Nanosecond)
		}
		if ev.Start.Before(to) && end.After(from) {
			out = append(out, ev)
		}
	}
	return out
}
