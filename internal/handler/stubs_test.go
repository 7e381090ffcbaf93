package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/service"
)

type stubEvents struct {
	mu     sync.Mutex
	events map[string]model.Event
	filter model.EventFilter
	calls  []string
}

func newStubEvents(evs ...model.Event) *stubEvents {
	s := &stubEvents{events: map[string]model.Event{}}
	for _, e := range evs {
		s.events[e.ID] = e
	}
	return s
}

func (s *stubEvents) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubEvents) Create(_ context.Context, organizerID string, in model.EventInput) (*model.Event, error) {
	s.record("create")
	if strings.TrimSpace(in.Title) == "" {
		return nil, &service.Error{Kind: service.KindValidation, Message: "title required"}
	}
	return &model.Event{ID: "new", OrganizerID: organizerID, Title: in.Title, Capacity: in.Capacity}, nil
}

func (s *stubEvents) Get(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, service.ErrEventNotFound
	}
	return &e, nil
}

func (s *stubEvents) List(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	out := []model.Event{}
	for _, e := range s.events {
		if e.IsPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubEvents) ListForUser(context.Context, string) ([]model.Registration, error) {
	return []model.Registration{}, nil
}

func (s *stubEvents) Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error) {
	s.record("update " + id)
	if f := patch.NullField(); f != "" {
		return nil, &service.Error{Kind: service.KindValidation, Message: f + " cannot be null"}
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Title.ApplyTo(&e.Title)
	return e, nil
}

func (s *stubEvents) Cancel(ctx context.Context, id string) (*model.Event, error) {
	s.record("cancel " + id)
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.IsCancelled = true
	return e, nil
}

func (s *stubEvents) Delete(_ context.Context, id string) error {
	s.record("delete " + id)
	return nil
}

type stubRegs struct {
	mu        sync.Mutex
	attendees map[string]model.Attendee
	err       error
	notes     *string
	calls     []string
}

func newStubRegs(as ...model.Attendee) *stubRegs {
	s := &stubRegs{attendees: map[string]model.Attendee{}}
	for _, a := range as {
		s.attendees[a.ID] = a
	}
	return s
}

func (s *stubRegs) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.err
}

func (s *stubRegs) Register(_ context.Context, eventID, userID string, notes *string) (*model.Attendee, error) {
	if err := s.record("register " + eventID + " " + userID); err != nil {
		return nil, err
	}
	s.notes = notes
	return &model.Attendee{ID: "att", EventID: eventID, UserID: userID, Status: model.StatusConfirmed, Notes: notes}, nil
}

func (s *stubRegs) Unregister(_ context.Context, eventID, userID string) error {
	return s.record("unregister " + eventID + " " + userID)
}

func (s *stubRegs) IsRegistered(_ context.Context, eventID, userID string) (bool, error) {
	if err := s.record("is " + eventID + " " + userID); err != nil {
		return false, err
	}
	return userID == "u-reg", nil
}

func (s *stubRegs) ListAttendees(_ context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error) {
	call := "list " + eventID
	if status != nil {
		call += " " + string(*status)
	}
	if err := s.record(call); err != nil {
		return nil, err
	}
	return []model.AttendeeView{}, nil
}

func (s *stubRegs) GetAttendee(_ context.Context, id string) (*model.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendees[id]
	if !ok {
		return nil, service.ErrAttendeeNotFound
	}
	return &a, nil
}

func (s *stubRegs) UpdateStatus(ctx context.Context, id string, status model.Status, _ model.Optional[*string]) (*model.Attendee, error) {
	if err := s.record("status " + id + " " + string(status)); err != nil {
		return nil, err
	}
	a, err := s.GetAttendee(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

func (s *stubRegs) Confirm(ctx context.Context, id string) (*model.Attendee, error) {
	return s.UpdateStatus(ctx, id, model.StatusConfirmed, model.Optional[*string]{})
}

func (s *stubRegs) CheckIn(ctx context.Context, id string) (*model.Attendee, error) {
	if err := s.record("checkin " + id); err != nil {
		return nil, err
	}
	return s.GetAttendee(ctx, id)
}

// caller is the identity JWTAuth would have stored.
type caller struct {
	id   string
	role model.Role
}

var anonymous = caller{}

// call runs h against a request.  params are name, value pairs for path
// parameters.
func call(t *testing.T, h echo.HandlerFunc, method, target, body string, who caller, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if who.id != "" {
		middleware.SetIdentity(c, who.id, who.role)
	}
	require.NoError(t, h(c))
	return rec
}
