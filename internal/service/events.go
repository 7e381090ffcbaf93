package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/queue"
	"github.com/iliyamo/community-events/internal/repository"
)

// Event limits.
const (
	MaxTitleLen = 200
	MaxCapacity = 100000
)

// EventStore is the persistence the event service runs on.
type EventStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	ListRegistrations(ctx context.Context, userID string) ([]model.Registration, error)
	DeleteEvent(ctx context.Context, id string) error
	ListAttendees(ctx context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error)
}

// Events manages the event lifecycle.  Capacity changes go through the same
// event row lock as registrations.
type Events struct {
	store     EventStore
	jobs      Enqueuer
	log       *zap.Logger
	txTimeout time.Duration
	now       func() time.Time
}

func NewEvents(store EventStore, jobs Enqueuer, txTimeout time.Duration, log *zap.Logger) *Events {
	return &Events{
		store:     store,
		jobs:      jobs,
		log:       log,
		txTimeout: txTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func invalid(msg string) *Error { return newError(KindValidation, msg) }

// Create validates in and stores a new event owned by organizerID.
func (s *Events) Create(ctx context.Context, organizerID string, in model.EventInput) (*model.Event, error) {
	const op = "create_event"
	now := s.now()
	e := &model.Event{
		ID:          uuid.NewString(),
		OrganizerID: organizerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    in.Location,
		Capacity:    in.Capacity,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      utcPtr(in.EndsAt),
		IsPublished: in.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateEvent(e, true, now); err != nil {
		return nil, wrap(err, op, "", organizerID)
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, wrap(ErrUserNotFound, op, "", organizerID)
		}
		return nil, s.fail(op, e.ID, organizerID, err)
	}
	s.log.Info("event created", zap.String("event_id", e.ID), zap.String("organizer_id", organizerID))
	return e, nil
}

// Get returns an event with its seat count.
func (s *Events) Get(ctx context.Context, id string) (*model.Event, error) {
	const op = "get_event"
	if !validID(id) {
		return nil, wrap(ErrEventNotFound, op, id, "")
	}
	e, err := s.store.GetEvent(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrEventNotFound, op, id, "")
	}
	if err != nil {
		return nil, s.fail(op, id, "", err)
	}
	return e, nil
}

// List returns one page of upcoming published events.  Zero values in f
// select the first page, the default page size and the current time.
func (s *Events) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	out, err := s.store.ListEvents(ctx, f.Normalize(s.now()))
	if err != nil {
		return nil, s.fail("list_events", "", "", err)
	}
	return out, nil
}

// ListForUser returns userID's registrations with their events.
func (s *Events) ListForUser(ctx context.Context, userID string) ([]model.Registration, error) {
	out, err := s.store.ListRegistrations(ctx, userID)
	if err != nil {
		return nil, s.fail("list_registrations", "", userID, err)
	}
	return out, nil
}

// Update applies patch under the event lock.  Lowering capacity below the
// current number of seat holders is rejected; 0 (unlimited) always fits.
func (s *Events) Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error) {
	const op = "update_event"
	if !validID(id) {
		return nil, wrap(ErrEventNotFound, op, id, "")
	}
	if patch.Empty() {
		return nil, wrap(invalid("no fields to update"), op, id, "")
	}
	if f := patch.NullField(); f != "" {
		return nil, wrap(invalid(f+" cannot be null"), op, id, "")
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var out *model.Event
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		patch.Apply(e)
		e.Title = strings.TrimSpace(e.Title)
		e.StartsAt = e.StartsAt.UTC()
		e.EndsAt = utcPtr(e.EndsAt)
		now := s.now()
		if err := validateEvent(e, patch.StartsAt.Set, now); err != nil {
			return err
		}
		n, err := tx.CountSeats(ctx, id)
		if err != nil {
			return err
		}
		if !e.Unlimited() && n > e.Capacity {
			return ErrCapacityBelowSeats
		}
		e.AttendeeCount = n
		e.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, s.fail(op, id, "", err)
	}
	return out, nil
}

// Cancel marks an event cancelled and notifies its seat holders.  Cancelling
// twice is a no-op.  Attendee rows are kept for the record.
func (s *Events) Cancel(ctx context.Context, id string) (*model.Event, error) {
	const op = "cancel_event"
	if !validID(id) {
		return nil, wrap(ErrEventNotFound, op, id, "")
	}
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var out *model.Event
	changed := false
	err := s.store.InTx(txCtx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if !e.IsCancelled {
			e.IsCancelled = true
			e.UpdatedAt = s.now()
			if err := tx.UpdateEvent(ctx, e); err != nil {
				return err
			}
			changed = true
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, s.fail(op, id, "", err)
	}
	if changed {
		s.notifyCancelled(ctx, out)
		s.log.Info("event cancelled", zap.String("event_id", id))
	}
	return out, nil
}

func (s *Events) notifyCancelled(ctx context.Context, e *model.Event) {
	if s.jobs == nil {
		return
	}
	attendees, err := s.store.ListAttendees(ctx, e.ID, nil)
	if err != nil {
		s.log.Warn("cancel notifications skipped", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	at := s.now()
	for _, a := range attendees {
		if !a.Status.HoldsSeat() {
			continue
		}
		enqueue(ctx, s.jobs, s.log, queue.JobEventCancelled, queue.EventJob{
			EventID:    e.ID,
			EventTitle: e.Title,
			UserID:     a.UserID,
			StartsAt:   e.StartsAt,
			OccurredAt: at,
		})
	}
}

// Delete removes an event and, by cascade, its attendees.
func (s *Events) Delete(ctx context.Context, id string) error {
	const op = "delete_event"
	if !validID(id) {
		return wrap(ErrEventNotFound, op, id, "")
	}
	err := s.store.DeleteEvent(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return wrap(ErrEventNotFound, op, id, "")
	}
	if err != nil {
		return s.fail(op, id, "", err)
	}
	s.log.Info("event deleted", zap.String("event_id", id))
	return nil
}

func (s *Events) fail(op, eventID, userID string, err error) error {
	return logFailure(s.log, wrap(err, op, eventID, userID))
}

// validateEvent checks e's fields.  The start must lie in the future only
// when checkStart is set, so editing other fields of a started event works.
func validateEvent(e *model.Event, checkStart bool, now time.Time) error {
	switch {
	case e.Title == "":
		return invalid("title required")
	case len([]rune(e.Title)) > MaxTitleLen:
		return invalid("title too long")
	case e.Capacity < 0 || e.Capacity > MaxCapacity:
		return invalid("invalid capacity")
	case e.StartsAt.IsZero():
		return invalid("starts_at required")
	case checkStart && !e.StartsAt.After(now):
		return invalid("start must be in the future")
	case e.EndsAt != nil && !e.EndsAt.After(e.StartsAt):
		return invalid("end must be after start")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
