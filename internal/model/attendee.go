package model

import "time"

// Status is the lifecycle state of an attendee row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusNoShow    Status = "no_show"
)

// SeatStatuses lists the statuses that count against event capacity.
var SeatStatuses = []Status{StatusPending, StatusConfirmed}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusNoShow:
		return st, true
	}
	return "", false
}

// HoldsSeat reports whether an attendee in this status occupies a seat.
func (s Status) HoldsSeat() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Attendee links a user to an event.  At most one row exists per
// (EventID, UserID).
type Attendee struct {
	ID           string     `json:"id"`                      // attendees.id
	EventID      string     `json:"event_id"`                // attendees.event_id
	UserID       string     `json:"user_id"`                 // attendees.user_id
	Status       Status     `json:"status"`                  // attendees.status
	Notes        *string    `json:"notes,omitempty"`         // attendees.notes (nullable)
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"` // attendees.checked_in_at (nullable)
	RegisteredAt time.Time  `json:"registered_at"`           // attendees.registered_at
	UpdatedAt    time.Time  `json:"updated_at"`              // attendees.updated_at
}

// AttendeeView is an attendee joined with the minimal public profile of its
// user, as returned by attendee listings.
type AttendeeView struct {
	Attendee
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// RegisterInput is the optional body of a registration request.
type RegisterInput struct {
	Notes *string `json:"notes"`
}

// StatusInput is the body of a status update.  Notes follows the patch
// convention: absent keeps, null clears.
type StatusInput struct {
	Status string            `json:"status"`
	Notes  Optional[*string] `json:"notes"`
}

// Registration pairs an event with one user's attendee row on it.
type Registration struct {
	Event    Event    `json:"event"`
	Attendee Attendee `json:"attendee"`
}
