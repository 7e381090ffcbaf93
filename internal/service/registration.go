// Package service holds the business rules of the events backend.  Each
// service receives its store and collaborators through its constructor and
// returns *Error values whose Kind the HTTP layer translates.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/queue"
	"github.com/iliyamo/community-events/internal/repository"
)

var tracer = otel.Tracer("github.com/iliyamo/community-events/internal/service")

// enqueueTimeout bounds the post-commit notification publish.
const enqueueTimeout = 2 * time.Second

// RegistrationStore is the persistence the registration service runs on.
type RegistrationStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
	IsRegistered(ctx context.Context, eventID, userID string) (bool, error)
	ListAttendees(ctx context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error)
	GetAttendee(ctx context.Context, id string) (*model.Attendee, error)
}

// Enqueuer hands notification jobs to the broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

// Registrations keeps attendee rows consistent with event capacity.  Every
// write that can add a seat holder locks the event row first, so the seat
// count it checks cannot change before the write commits.
type Registrations struct {
	store       RegistrationStore
	jobs        Enqueuer
	log         *zap.Logger
	autoConfirm bool
	txTimeout   time.Duration
	now         func() time.Time
}

// NewRegistrations builds the service.  jobs may be nil to disable
// notifications.
func NewRegistrations(store RegistrationStore, jobs Enqueuer, cfg config.RegistrationConfig, txTimeout time.Duration, log *zap.Logger) *Registrations {
	return &Registrations{
		store:       store,
		jobs:        jobs,
		log:         log,
		autoConfirm: cfg.AutoConfirm,
		txTimeout:   txTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register adds userID to eventID.  Existence, start time, uniqueness and
// capacity are checked and the row inserted in one transaction holding the
// event lock.  Register is never retried here: a timeout may hide a commit,
// so callers confirm with IsRegistered before trying again.
func (s *Registrations) Register(ctx context.Context, eventID, userID string, notes *string) (att *model.Attendee, err error) {
	const op = "register"
	ctx, span := startSpan(ctx, "Registrations.Register", eventID, userID)
	defer func() { endSpan(span, err) }()

	if !validID(eventID) {
		return nil, wrap(ErrEventNotFound, op, eventID, userID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var ev *model.Event
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		// Drafts are invisible to everyone but their organizer.
		if !e.IsPublished && e.OrganizerID != userID {
			return ErrEventNotFound
		}
		if e.IsCancelled {
			return ErrEventCancelled
		}
		now := s.now()
		if e.HasStarted(now) {
			return ErrEventInPast
		}
		if _, err := tx.FindAttendee(ctx, eventID, userID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if !e.Unlimited() {
			n, err := tx.CountSeats(ctx, eventID)
			if err != nil {
				return err
			}
			if n >= e.Capacity {
				return ErrEventFull
			}
		}
		a := &model.Attendee{
			ID:           uuid.NewString(),
			EventID:      eventID,
			UserID:       userID,
			Status:       s.initialStatus(),
			Notes:        notes,
			RegisteredAt: now,
			UpdatedAt:    now,
		}
		switch err := tx.InsertAttendee(ctx, a); {
		case errors.Is(err, repository.ErrDuplicate):
			return ErrAlreadyRegistered
		case errors.Is(err, repository.ErrMissingReference):
			return ErrUserNotFound
		case err != nil:
			return err
		}
		att, ev = a, e
		return nil
	})
	if err != nil {
		return nil, s.fail(op, eventID, userID, err)
	}

	job := queue.JobRegistrationConfirmed
	if att.Status == model.StatusPending {
		job = queue.JobRegistrationPending
	}
	s.notify(ctx, job, registrationJob(ev, att, s.now()))
	s.log.Info("attendee registered",
		zap.String("event_id", eventID), zap.String("user_id", userID), zap.String("status", string(att.Status)))
	return att, nil
}

// Unregister deletes the attendee row of userID on eventID.  A missing row
// is ErrNotRegistered, also on a second call.  It takes the event lock like
// Register so the two never interleave on one event.
func (s *Registrations) Unregister(ctx context.Context, eventID, userID string) (err error) {
	const op = "unregister"
	ctx, span := startSpan(ctx, "Registrations.Unregister", eventID, userID)
	defer func() { endSpan(span, err) }()

	if !validID(eventID) {
		return wrap(ErrNotRegistered, op, eventID, userID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		ev      *model.Event
		removed *model.Attendee
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}
		a, err := tx.FindAttendee(ctx, eventID, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}
		if err := tx.DeleteAttendee(ctx, a.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotRegistered
			}
			return err
		}
		ev, removed = e, a
		return nil
	})
	if err != nil {
		return s.fail(op, eventID, userID, err)
	}
	s.notify(ctx, queue.JobRegistrationCancelled, registrationJob(ev, removed, s.now()))
	s.log.Info("attendee unregistered", zap.String("event_id", eventID), zap.String("user_id", userID))
	return nil
}

// IsRegistered reports whether userID has an attendee row on eventID.  A
// transient store failure is retried once.
func (s *Registrations) IsRegistered(ctx context.Context, eventID, userID string) (ok bool, err error) {
	const op = "is_registered"
	ctx, span := startSpan(ctx, "Registrations.IsRegistered", eventID, userID)
	defer func() { endSpan(span, err) }()

	if !validID(eventID) {
		return false, nil
	}
	for attempt := 0; ; attempt++ {
		ok, err = s.store.IsRegistered(ctx, eventID, userID)
		if err == nil {
			return ok, nil
		}
		if attempt > 0 || ctx.Err() != nil || !retryable(err) {
			return false, s.fail(op, eventID, userID, err)
		}
		s.log.Debug("is_registered: retrying after transient error", zap.Error(err))
	}
}

// ListAttendees returns the attendees of eventID in registration order,
// optionally narrowed to one status.
func (s *Registrations) ListAttendees(ctx context.Context, eventID string, status *model.Status) (out []model.AttendeeView, err error) {
	const op = "list_attendees"
	ctx, span := startSpan(ctx, "Registrations.ListAttendees", eventID, "")
	defer func() { endSpan(span, err) }()

	if !validID(eventID) {
		return nil, wrap(ErrEventNotFound, op, eventID, "")
	}
	out, err = s.store.ListAttendees(ctx, eventID, status)
	if err != nil {
		return nil, s.fail(op, eventID, "", err)
	}
	return out, nil
}

// GetAttendee returns one attendee row.
func (s *Registrations) GetAttendee(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	const op = "get_attendee"
	if !validID(attendeeID) {
		return nil, wrap(ErrAttendeeNotFound, op, "", "")
	}
	a, err := s.store.GetAttendee(ctx, attendeeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrAttendeeNotFound, op, "", "")
	}
	if err != nil {
		return nil, s.fail(op, "", "", err)
	}
	return a, nil
}

// UpdateStatus moves an attendee to status and optionally replaces its
// notes.  Any transition is allowed here; who may request which one is
// decided by the caller.  Moving a row into a seat-holding status re-checks
// capacity under the event lock.
func (s *Registrations) UpdateStatus(ctx context.Context, attendeeID string, status model.Status, notes model.Optional[*string]) (att *model.Attendee, err error) {
	const op = "update_status"
	ctx, span := startSpan(ctx, "Registrations.UpdateStatus", "", "")
	span.SetAttributes(attribute.String("attendee.id", attendeeID), attribute.String("attendee.status", string(status)))
	defer func() { endSpan(span, err) }()

	if _, ok := model.ParseStatus(string(status)); !ok {
		return nil, wrap(ErrInvalidStatus, op, "", "")
	}
	current, err := s.GetAttendee(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var ev *model.Event
	var previous model.Status
	// Lock order is event then attendee, the same as Register.
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEvent(ctx, current.EventID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return err
		}
		a, err := tx.LockAttendee(ctx, attendeeID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return err
		}
		if status.HoldsSeat() && !a.Status.HoldsSeat() && !e.Unlimited() {
			n, err := tx.CountSeats(ctx, e.ID)
			if err != nil {
				return err
			}
			if n >= e.Capacity {
				return ErrEventFull
			}
		}
		previous = a.Status
		a.Status = status
		notes.ApplyTo(&a.Notes)
		a.UpdatedAt = s.now()
		if err := tx.UpdateAttendee(ctx, a); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAttendeeNotFound
			}
			return err
		}
		att, ev = a, e
		return nil
	})
	if err != nil {
		return nil, s.fail(op, current.EventID, current.UserID, err)
	}
	if previous != status {
		job := queue.JobStatusChanged
		if status == model.StatusConfirmed {
			job = queue.JobRegistrationConfirmed
		}
		s.notify(ctx, job, registrationJob(ev, att, s.now()))
	}
	return att, nil
}

// Confirm is UpdateStatus to confirmed, leaving notes untouched.
func (s *Registrations) Confirm(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	return s.UpdateStatus(ctx, attendeeID, model.StatusConfirmed, model.Optional[*string]{})
}

// CheckIn stamps a confirmed attendee's arrival.  Only confirmed rows can
// be checked in, and only once.
func (s *Registrations) CheckIn(ctx context.Context, attendeeID string) (att *model.Attendee, err error) {
	const op = "check_in"
	ctx, span := startSpan(ctx, "Registrations.CheckIn", "", "")
	span.SetAttributes(attribute.String("attendee.id", attendeeID))
	defer func() { endSpan(span, err) }()

	if !validID(attendeeID) {
		return nil, wrap(ErrAttendeeNotFound, op, "", "")
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.LockAttendee(ctx, attendeeID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return err
		}
		if a.Status != model.StatusConfirmed {
			return ErrNotConfirmed
		}
		if a.CheckedInAt != nil {
			return ErrAlreadyCheckedIn
		}
		now := s.now()
		a.CheckedInAt = &now
		a.UpdatedAt = now
		if err := tx.UpdateAttendee(ctx, a); err != nil {
			return err
		}
		att = a
		return nil
	})
	if err != nil {
		return nil, s.fail(op, "", "", err)
	}
	return att, nil
}

func (s *Registrations) initialStatus() model.Status {
	if s.autoConfirm {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

// fail wraps err with operation context and logs failures that are not
// ordinary client errors.
func (s *Registrations) fail(op, eventID, userID string, err error) error {
	return logFailure(s.log, wrap(err, op, eventID, userID))
}

// notify enqueues a job after commit.  The publish gets its own bounded
// context so a cancelled request does not drop it, and a failure is only
// logged: the registration already stands.
func (s *Registrations) notify(ctx context.Context, jobType string, payload any) {
	enqueue(ctx, s.jobs, s.log, jobType, payload)
}

// enqueue reports whether the job reached the queue.
func enqueue(ctx context.Context, jobs Enqueuer, log *zap.Logger, jobType string, payload any) bool {
	if jobs == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := jobs.Enqueue(ctx, jobType, payload); err != nil {
		log.Warn("notification enqueue failed", zap.String("job_type", jobType), zap.Error(err))
		return false
	}
	return true
}

func logFailure(log *zap.Logger, err error) error {
	switch KindOf(err) {
	case KindInternal:
		log.Error("operation failed", zap.Error(err))
	case KindConflict, KindUnavailable:
		log.Warn("operation failed", zap.Error(err))
	}
	return err
}

func registrationJob(e *model.Event, a *model.Attendee, at time.Time) queue.RegistrationJob {
	return queue.RegistrationJob{
		AttendeeID: a.ID,
		EventID:    a.EventID,
		EventTitle: e.Title,
		UserID:     a.UserID,
		Status:     string(a.Status),
		StartsAt:   e.StartsAt,
		OccurredAt: at,
	}
}

// retryable reports whether a read may be attempted again.
func retryable(err error) bool {
	return errors.Is(err, repository.ErrConflict) || database.IsTransient(err)
}

// validID reports whether id is a well-formed UUID.  Malformed ids cannot
// exist, so callers answer NotFound without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func startSpan(ctx context.Context, name, eventID, userID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if eventID != "" {
		span.SetAttributes(attribute.String("event.id", eventID))
	}
	if userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
	}
	span.End()
}
