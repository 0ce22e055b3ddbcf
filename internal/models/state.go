package models

import (
	"strings"
	"time"
)

// BookingState is a query-time filter over bookings. It is not stored.
type BookingState string

const (
	StateAll      BookingState = "ALL"
	StateCurrent  BookingState = "CURRENT"
	StatePast     BookingState = "PAST"
	StateFuture   BookingState = "FUTURE"
	StateWaiting  BookingState = "WAITING"
	StateRejected BookingState = "REJECTED"
)

var bookingStates = map[string]BookingState{
	string(StateAll):      StateAll,
	string(StateCurrent):  StateCurrent,
	string(StatePast):     StatePast,
	string(StateFuture):   StateFuture,
	string(StateWaiting):  StateWaiting,
	string(StateRejected): StateRejected,
}

// ParseBookingState accepts any letter case; an empty string means ALL.
func ParseBookingState(raw string) (BookingState, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StateAll, true
	}
	state, ok := bookingStates[strings.ToUpper(trimmed)]
	return state, ok
}

// Phase places a booking on the timeline relative to now.
type Phase int

const (
	PhasePast Phase = iota
	PhaseCurrent
	PhaseFuture
)

// PhaseAt classifies b for the given instant. Exactly one phase applies:
// a booking that ends at now is past, one that starts at now is current.
func (b *Booking) PhaseAt(now time.Time) Phase {
	switch {
	case b.Start.After(now):
		return PhaseFuture
	case b.End.After(now):
		return PhaseCurrent
	default:
		return PhasePast
	}
}

// Matches reports whether b belongs to the state at instant now.
func (s BookingState) Matches(b *Booking, now time.Time) bool {
	switch s {
	case StateAll:
		return true
	case StateCurrent:
		return b.PhaseAt(now) == PhaseCurrent
	case StatePast:
		return b.PhaseAt(now) == PhasePast
	case StateFuture:
		return b.PhaseAt(now) == PhaseFuture
	case StateWaiting:
		return b.Status == StatusWaiting
	case StateRejected:
		return b.Status == StatusRejected
	default:
		return false
	}
}
