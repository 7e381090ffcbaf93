package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/repository"
)

// memStore is an in-memory EventStore, RegistrationStore and ReminderStore.
// Transactions run one at a time on a copy of the data that is swapped in
// on commit, which gives the same serial outcome as the event row lock.
type memStore struct {
	txMu sync.Mutex // held for the whole of one transaction

	mu        sync.Mutex
	events    map[string]model.Event
	attendees map[string]model.Attendee
	reminded  map[string]time.Time
	users     map[string]bool // known users; nil accepts anyone

	txErr     error   // returned by InTx without running fn
	isRegErrs []error // consumed by IsRegistered, one per call
	txCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		events:    map[string]model.Event{},
		attendees: map[string]model.Attendee{},
		reminded:  map[string]time.Time{},
	}
}

func (s *memStore) putEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *memStore) putAttendee(a model.Attendee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendees[a.ID] = a
}

func (s *memStore) seats(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countSeats(s.attendees, eventID)
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.txCalls++
	txErr := s.txErr
	tx := &memTx{
		events:    make(map[string]model.Event, len(s.events)),
		attendees: make(map[string]model.Attendee, len(s.attendees)),
		users:     s.users,
	}
	for k, v := range s.events {
		tx.events[k] = v
	}
	for k, v := range s.attendees {
		tx.attendees[k] = v
	}
	s.mu.Unlock()

	if txErr != nil {
		return txErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.events, s.attendees = tx.events, tx.attendees
	s.mu.Unlock()
	return nil
}

func (s *memStore) IsRegistered(_ context.Context, eventID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.isRegErrs) > 0 {
		err := s.isRegErrs[0]
		s.isRegErrs = s.isRegErrs[1:]
		return false, err
	}
	_, ok := findAttendee(s.attendees, eventID, userID)
	return ok, nil
}

func (s *memStore) ListAttendees(_ context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AttendeeView
	for _, a := range s.attendees {
		if a.EventID != eventID || (status != nil && a.Status != *status) {
			continue
		}
		out = append(out, model.AttendeeView{Attendee: a})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) GetAttendee(_ context.Context, id string) (*model.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendees[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users != nil && !s.users[e.OrganizerID] {
		return repository.ErrMissingReference
	}
	s.events[e.ID] = *e
	return nil
}

func (s *memStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.AttendeeCount = countSeats(s.attendees, id)
	return &e, nil
}

func (s *memStore) ListEvents(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Event
	for _, e := range s.events {
		if !e.IsPublished || e.IsCancelled || e.StartsAt.Before(f.From) {
			continue
		}
		if f.Title != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(f.Title)) {
			continue
		}
		if f.Location != "" && (e.Location == nil || !strings.Contains(strings.ToLower(*e.Location), strings.ToLower(f.Location))) {
			continue
		}
		e.AttendeeCount = countSeats(s.attendees, e.ID)
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartsAt.Equal(all[j].StartsAt) {
			return all[i].StartsAt.Before(all[j].StartsAt)
		}
		return all[i].ID < all[j].ID
	})
	lo := (f.Page - 1) * f.PageSize
	if lo >= len(all) {
		return nil, nil
	}
	hi := min(lo+f.PageSize, len(all))
	return all[lo:hi], nil
}

func (s *memStore) ListRegistrations(_ context.Context, userID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, a := range s.attendees {
		if a.UserID != userID {
			continue
		}
		e := s.events[a.EventID]
		e.AttendeeCount = countSeats(s.attendees, e.ID)
		out = append(out, model.Registration{Event: e, Attendee: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.StartsAt.Before(out[j].Event.StartsAt) })
	return out, nil
}

func (s *memStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.events, id)
	for k, a := range s.attendees {
		if a.EventID == id {
			delete(s.attendees, k)
		}
	}
	return nil
}

func (s *memStore) DueReminders(_ context.Context, from, to time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		if _, done := s.reminded[e.ID]; done || !e.IsPublished || e.IsCancelled {
			continue
		}
		if e.StartsAt.After(from) && !e.StartsAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ClaimReminder(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.reminded[id]; done {
		return false, nil
	}
	s.reminded[id] = at
	return true, nil
}

// memTx is the transactional view handed to InTx callbacks.
type memTx struct {
	events    map[string]model.Event
	attendees map[string]model.Attendee
	users     map[string]bool
}

func (t *memTx) LockEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := t.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (t *memTx) CountSeats(_ context.Context, eventID string) (int, error) {
	return countSeats(t.attendees, eventID), nil
}

func (t *memTx) FindAttendee(_ context.Context, eventID, userID string) (*model.Attendee, error) {
	a, ok := findAttendee(t.attendees, eventID, userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (t *memTx) LockAttendee(_ context.Context, id string) (*model.Attendee, error) {
	a, ok := t.attendees[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (t *memTx) InsertAttendee(_ context.Context, a *model.Attendee) error {
	if _, ok := findAttendee(t.attendees, a.EventID, a.UserID); ok {
		return repository.ErrDuplicate
	}
	if t.users != nil && !t.users[a.UserID] {
		return repository.ErrMissingReference
	}
	t.attendees[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAttendee(_ context.Context, a *model.Attendee) error {
	if _, ok := t.attendees[a.ID]; !ok {
		return repository.ErrNotFound
	}
	t.attendees[a.ID] = *a
	return nil
}

func (t *memTx) DeleteAttendee(_ context.Context, id string) error {
	if _, ok := t.attendees[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.attendees, id)
	return nil
}

func (t *memTx) UpdateEvent(_ context.Context, e *model.Event) error {
	if _, ok := t.events[e.ID]; !ok {
		return repository.ErrNotFound
	}
	e2 := *e
	e2.AttendeeCount = 0
	t.events[e.ID] = e2
	return nil
}

func countSeats(attendees map[string]model.Attendee, eventID string) int {
	n := 0
	for _, a := range attendees {
		if a.EventID == eventID && a.Status.HoldsSeat() {
			n++
		}
	}
	return n
}

func findAttendee(attendees map[string]model.Attendee, eventID, userID string) (model.Attendee, bool) {
	for _, a := range attendees {
		if a.EventID == eventID && a.UserID == userID {
			return a, true
		}
	}
	return model.Attendee{}, false
}

// recordedJob is one Enqueue call.
type recordedJob struct {
	Type    string
	Payload any
}

// jobRecorder is an Enqueuer that remembers what it was given.
type jobRecorder struct {
	mu   sync.Mutex
	jobs []recordedJob
	err  error
}

func (r *jobRecorder) Enqueue(_ context.Context, jobType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, recordedJob{Type: jobType, Payload: payload})
	return nil
}

func (r *jobRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.Type
	}
	return out
}
