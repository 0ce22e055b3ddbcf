package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of them.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
)

var (
	ErrUserNotFound    = NewError(ErrNotFound, "user not found")
	ErrItemNotFound    = NewError(ErrNotFound, "item not found")
	ErrBookingNotFound = NewError(ErrNotFound, "booking not found")
	ErrOwnItem         = NewError(ErrNotFound, "owner cannot book own item")
	ErrNotItemOwner    = NewError(ErrNotFound, "only owner can update item")
	ErrNotBookingOwner = NewError(ErrNotFound, "only owner can decide booking")
	ErrBookingHidden   = NewError(ErrNotFound, "booking not found")

	ErrItemUnavailable = NewError(ErrInvalidArgument, "item not available")
	ErrInvalidRange    = NewError(ErrInvalidArgument, "start must be before end")
	ErrMissingTime     = NewError(ErrInvalidArgument, "start and end are required")
	ErrInvalidPage     = NewError(ErrInvalidArgument, "from must be >= 0 and size must be > 0")
	ErrNotBooked       = NewError(ErrInvalidArgument, "user didn't book this item")
	ErrEmptyComment    = NewError(ErrInvalidArgument, "comment text is required")

	ErrAlreadyDecided = NewError(ErrInvalidState, "booking status already decided")

	ErrEmailTaken = NewError(ErrConflict, "email already in use")
	ErrUserInUse  = NewError(ErrConflict, "user has bookings or items")
)

// Error is a message tagged with its kind.
type Error struct {
	kind error
	msg  string
}

func NewError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the kind sentinel wrapped by err, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidArgument, ErrInvalidState, ErrForbidden, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName is a short label for metrics and logs.
func KindName(err error) string {
	switch Kind(err) {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrInvalidState:
		return "invalid_state"
	case ErrForbidden:
		return "forbidden"
	case ErrConflict:
		return "conflict"
	default:
		return "internal"
	}
}
