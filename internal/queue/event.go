// Package queue defines the notification jobs exchanged over the message
// broker together with the publisher and consumer that move them.
package queue

import "time"

// Job types double as AMQP routing keys on the notifications exchange.
const (
	JobRegistrationConfirmed = "registration.confirmed"
	JobRegistrationPending   = "registration.pending"
	JobRegistrationCancelled = "registration.cancelled"
	JobStatusChanged         = "registration.status_changed"
	JobEventReminder         = "event.reminder"
	JobEventCancelled        = "event.cancelled"
)

// RegistrationJob is published after an attendee row is created, removed or
// changes status.  It carries enough for a notifier to address the user
// without querying the primary database.
type RegistrationJob struct {
	AttendeeID string    `json:"attendee_id"`
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	StartsAt   time.Time `json:"starts_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventJob is published once per seat holder when an event is about to
// start or has been cancelled.
type EventJob struct {
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	UserID     string    `json:"user_id"`
	StartsAt   time.Time `json:"starts_at"`
	OccurredAt time.Time `json:"occurred_at"`
}
