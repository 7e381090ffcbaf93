package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/repository"
)

// Kind is the stable machine-readable class of a service error.  The HTTP
// layer maps kinds onto status codes.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation_error"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// kindError lets errors.Is match a whole kind: errors.Is(err, ErrValidation).
type kindError Kind

func (k kindError) Error() string { return string(k) }

var (
	ErrNotFound     error = kindError(KindNotFound)
	ErrUnauthorized error = kindError(KindUnauthorized)
	ErrValidation   error = kindError(KindValidation)
	ErrForbidden    error = kindError(KindForbidden)
	ErrConflict     error = kindError(KindConflict)
	ErrUnavailable  error = kindError(KindUnavailable)
)

// Error is returned by every service operation.  Message is safe to show
// to end users; Op, EventID, UserID and Err are for logs.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	EventID string
	UserID  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.EventID != "" {
			b.WriteString(" event=" + e.EventID)
		}
		if e.UserID != "" {
			b.WriteString(" user=" + e.UserID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Reasons.  Operations return these wrapped with context, so compare with
// errors.Is.
var (
	ErrEventNotFound    = newError(KindNotFound, "event not found")
	ErrUserNotFound     = newError(KindNotFound, "user not found")
	ErrAttendeeNotFound = newError(KindNotFound, "attendee not found")
	ErrNotRegistered    = newError(KindNotFound, "not registered")

	ErrEventInPast        = newError(KindValidation, "event in past")
	ErrAlreadyRegistered  = newError(KindValidation, "already registered")
	ErrEventFull          = newError(KindValidation, "event at capacity")
	ErrEventCancelled     = newError(KindValidation, "event cancelled")
	ErrInvalidStatus      = newError(KindValidation, "invalid status")
	ErrNotConfirmed       = newError(KindValidation, "attendee not confirmed")
	ErrAlreadyCheckedIn   = newError(KindValidation, "already checked in")
	ErrCapacityBelowSeats = newError(KindValidation, "capacity below current attendance")

	ErrInvalidCredentials = newError(KindUnauthorized, "invalid credentials")
	ErrInvalidRefresh     = newError(KindUnauthorized, "invalid refresh token")

	ErrEmailExists = newError(KindConflict, "email already exists")
	ErrTxConflict  = newError(KindConflict, "concurrent update, try again")
	ErrTimeout     = newError(KindUnavailable, "transaction timed out")
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// wrap attaches operation context to err, classifying store failures on
// the way.  Reason errors keep their kind and message; timeouts become
// KindUnavailable, lock conflicts KindConflict, the rest KindInternal.
func wrap(err error, op, eventID, userID string) error {
	if err == nil {
		return nil
	}
	out := &Error{Op: op, EventID: eventID, UserID: userID, Err: err}
	var reason *Error
	switch {
	case errors.As(err, &reason):
		out.Kind, out.Message = reason.Kind, reason.Message
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		out.Kind, out.Message = ErrTimeout.Kind, ErrTimeout.Message
	case errors.Is(err, repository.ErrConflict), database.IsTransient(err):
		out.Kind, out.Message = ErrTxConflict.Kind, ErrTxConflict.Message
	default:
		out.Kind, out.Message = KindInternal, "internal server error"
	}
	return out
}
