package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/queue"
)

func newEvents(store *memStore, jobs Enqueuer) *Events {
	return NewEvents(store, jobs, 2*time.Second, zap.NewNop())
}

func validInput() model.EventInput {
	return model.EventInput{
		Title:       "  Board game night ",
		Capacity:    12,
		StartsAt:    time.Now().Add(48 * time.Hour),
		IsPublished: true,
	}
}

func TestCreateEvent(t *testing.T) {
	store := newMemStore()
	svc := newEvents(store, nil)
	org := uuid.NewString()

	e, err := svc.Create(context.Background(), org, validInput())
	require.NoError(t, err)
	assert.Equal(t, "Board game night", e.Title)
	assert.Equal(t, org, e.OrganizerID)
	assert.Equal(t, time.UTC, e.StartsAt.Location())

	got, err := svc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, 0, got.AttendeeCount)
}

func TestCreateEventValidation(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	end := time.Now().Add(47 * time.Hour)
	tests := []struct {
		name string
		mut  func(*model.EventInput)
		msg  string
	}{
		{"blank title", func(in *model.EventInput) { in.Title = "   " }, "title required"},
		{"long title", func(in *model.EventInput) { in.Title = strings.Repeat("x", MaxTitleLen+1) }, "title too long"},
		{"negative capacity", func(in *model.EventInput) { in.Capacity = -1 }, "invalid capacity"},
		{"huge capacity", func(in *model.EventInput) { in.Capacity = MaxCapacity + 1 }, "invalid capacity"},
		{"no start", func(in *model.EventInput) { in.StartsAt = time.Time{} }, "starts_at required"},
		{"past start", func(in *model.EventInput) { in.StartsAt = past }, "start must be in the future"},
		{"end before start", func(in *model.EventInput) { in.EndsAt = &end }, "end must be after start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newEvents(newMemStore(), nil)
			in := validInput()
			tt.mut(&in)
			_, err := svc.Create(context.Background(), uuid.NewString(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.msg, MessageOf(err))
		})
	}
}

func TestCreateEventUnknownOrganizer(t *testing.T) {
	store := newMemStore()
	store.users = map[string]bool{}
	_, err := newEvents(store, nil).Create(context.Background(), uuid.NewString(), validInput())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetEventNotFound(t *testing.T) {
	svc := newEvents(newMemStore(), nil)
	for _, id := range []string{uuid.NewString(), "42"} {
		_, err := svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestListEventsPaging(t *testing.T) {
	store := newMemStore()
	svc := newEvents(store, nil)
	now := time.Now().UTC()
	var want []string
	for i := 0; i < 5; i++ {
		e := seedEvent(store, 0, func(e *model.Event) { e.StartsAt = now.Add(time.Duration(i+1) * time.Hour) })
		want = append(want, e.ID)
	}
	seedEvent(store, 0, func(e *model.Event) { e.IsPublished = false })
	seedEvent(store, 0, func(e *model.Event) { e.IsCancelled = true })
	seedEvent(store, 0, func(e *model.Event) { e.StartsAt = now.Add(-time.Hour) })

	page1, err := svc.List(context.Background(), model.EventFilter{PageSize: 2})
	require.NoError(t, err)
	page3, err := svc.List(context.Background(), model.EventFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	all, err := svc.List(context.Background(), model.EventFilter{})
	require.NoError(t, err)

	require.Len(t, page1, 2)
	assert.Equal(t, want[:2], []string{page1[0].ID, page1[1].ID})
	require.Len(t, page3, 1)
	assert.Equal(t, want[4], page3[0].ID)
	assert.Len(t, all, 5)
}

func TestListEventsTextFilters(t *testing.T) {
	store := newMemStore()
	svc := newEvents(store, nil)
	park, hall := "Riverside Park", "Town Hall"
	cleanup := seedEvent(store, 0, func(e *model.Event) { e.Title = "Park Cleanup"; e.Location = &park })
	seedEvent(store, 0, func(e *model.Event) { e.Title = "Quiz night"; e.Location = &hall })
	seedEvent(store, 0, func(e *model.Event) { e.Title = "Cleanup crew meeting" })

	out, err := svc.List(context.Background(), model.EventFilter{Title: " cleanup "})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = svc.List(context.Background(), model.EventFilter{Title: "cleanup", Location: "PARK"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, cleanup.ID, out[0].ID)
}

func TestUpdateEventCapacity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newEvents(store, nil)
	regs := newRegistrations(store, nil, true)
	ev := seedEvent(store, 5)
	for i := 0; i < 3; i++ {
		_, err := regs.Register(ctx, ev.ID, uuid.NewString(), nil)
		require.NoError(t, err)
	}

	_, err := svc.Update(ctx, ev.ID, model.EventPatch{Capacity: model.Some(2)})
	assert.ErrorIs(t, err, ErrCapacityBelowSeats)

	out, err := svc.Update(ctx, ev.ID, model.EventPatch{Capacity: model.Some(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Capacity)
	assert.Equal(t, 3, out.AttendeeCount)

	_, err = regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrEventFull)

	out, err = svc.Update(ctx, ev.ID, model.EventPatch{Capacity: model.Some(0)})
	require.NoError(t, err)
	assert.True(t, out.Unlimited())
}

func TestUpdateEventFields(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newEvents(store, nil)
	loc := "Town hall"
	ev := seedEvent(store, 5, func(e *model.Event) { e.Location = &loc })

	_, err := svc.Update(ctx, ev.ID, model.EventPatch{})
	assert.Equal(t, "no fields to update", MessageOf(err))

	out, err := svc.Update(ctx, ev.ID, model.EventPatch{
		Title:    model.Some(" Park cleanup "),
		Location: model.Optional[*string]{Set: true, Null: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Park cleanup", out.Title)
	assert.Nil(t, out.Location)

	_, err = svc.Update(ctx, ev.ID, model.EventPatch{StartsAt: model.Some(time.Now().Add(-time.Minute))})
	assert.Equal(t, "start must be in the future", MessageOf(err))

	_, err = svc.Update(ctx, uuid.NewString(), model.EventPatch{Title: model.Some("x")})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestUpdateEventRejectsNullOnRequiredFields(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newEvents(store, nil)
	regs := newRegistrations(store, nil, true)
	ev := seedEvent(store, 1)

	tests := []struct {
		body string
		msg  string
	}{
		{`{"capacity":null}`, "capacity cannot be null"},
		{`{"title":null}`, "title cannot be null"},
		{`{"starts_at":null}`, "starts_at cannot be null"},
		{`{"is_published":null,"location":"Hall"}`, "is_published cannot be null"},
	}
	for _, tt := range tests {
		var patch model.EventPatch
		require.NoError(t, json.Unmarshal([]byte(tt.body), &patch))
		_, err := svc.Update(ctx, ev.ID, patch)
		assert.ErrorIs(t, err, ErrValidation, tt.body)
		assert.Equal(t, tt.msg, MessageOf(err))
	}

	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Capacity)
	assert.True(t, got.IsPublished)

	// the limit still holds
	_, err = regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrEventFull)
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	jobs := &jobRecorder{}
	svc := newEvents(store, jobs)
	regs := newRegistrations(store, nil, true)
	ev := seedEvent(store, 5)

	a, err := regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	require.NoError(t, err)
	_, err = regs.UpdateStatus(ctx, a.ID, model.StatusDeclined, model.Optional[*string]{})
	require.NoError(t, err)

	out, err := svc.Cancel(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, out.IsCancelled)
	// only the remaining seat holder is told
	assert.Equal(t, []string{queue.JobEventCancelled}, jobs.types())

	_, err = svc.Cancel(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, jobs.types(), 1, "second cancel is a no-op")

	_, err = regs.Register(ctx, ev.ID, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrEventCancelled)
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newEvents(store, nil)
	regs := newRegistrations(store, nil, true)
	ev := seedEvent(store, 5)
	user := uuid.NewString()
	_, err := regs.Register(ctx, ev.ID, user, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ev.ID))
	_, err = svc.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	ok, err := regs.IsRegistered(ctx, ev.ID, user)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Delete(ctx, ev.ID), ErrEventNotFound)
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newEvents(store, nil)
	regs := newRegistrations(store, nil, true)
	user := uuid.NewString()
	now := time.Now().UTC()
	later := seedEvent(store, 5, func(e *model.Event) { e.StartsAt = now.Add(72 * time.Hour) })
	sooner := seedEvent(store, 5, func(e *model.Event) { e.StartsAt = now.Add(2 * time.Hour) })
	seedEvent(store, 5)

	for _, id := range []string{later.ID, sooner.ID} {
		_, err := regs.Register(ctx, id, user, nil)
		require.NoError(t, err)
	}
	out, err := svc.ListForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, sooner.ID, out[0].Event.ID)
	assert.Equal(t, later.ID, out[1].Event.ID)
	assert.Equal(t, user, out[0].Attendee.UserID)
	assert.Equal(t, 1, out[0].Event.AttendeeCount)
}
