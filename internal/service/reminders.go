package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/queue"
)

// ReminderStore is the persistence the reminder scanner runs on.
type ReminderStore interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]model.Event, error)
	ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error)
	ListAttendees(ctx context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error)
}

// Reminders periodically enqueues one event.reminder job per seat holder of
// every event starting within the lead time.  Each event is claimed with a
// conditional update first, so several workers never remind twice.
type Reminders struct {
	store    ReminderStore
	jobs     Enqueuer
	log      *zap.Logger
	lead     time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewReminders(store ReminderStore, jobs Enqueuer, cfg config.ReminderConfig, log *zap.Logger) *Reminders {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Reminders{
		store:    store,
		jobs:     jobs,
		log:      log,
		lead:     cfg.Lead,
		interval: cfg.Interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run scans immediately and then every interval until ctx is done.
func (r *Reminders) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		if _, err := r.Scan(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("reminder scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Scan claims the events due for a reminder and enqueues their jobs.  It
// returns the number of jobs enqueued.
func (r *Reminders) Scan(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.store.DueReminders(ctx, now, now.Add(r.lead))
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, e := range due {
		ok, err := r.store.ClaimReminder(ctx, e.ID, now)
		if err != nil {
			return sent, err
		}
		if !ok {
			continue
		}
		attendees, err := r.store.ListAttendees(ctx, e.ID, nil)
		if err != nil {
			return sent, err
		}
		enqueued := 0
		for _, a := range attendees {
			if !a.Status.HoldsSeat() {
				continue
			}
			if enqueue(ctx, r.jobs, r.log, queue.JobEventReminder, queue.EventJob{
				EventID:    e.ID,
				EventTitle: e.Title,
				UserID:     a.UserID,
				StartsAt:   e.StartsAt,
				OccurredAt: now,
			}) {
				enqueued++
			}
		}
		sent += enqueued
		r.log.Info("event reminders enqueued", zap.String("event_id", e.ID), zap.Int("attendees", len(attendees)), zap.Int("enqueued", enqueued))
	}
	return sent, nil
}
