package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
)

// EventService is the event lifecycle API.
type EventService interface {
	Create(ctx context.Context, organizerID string, in model.EventInput) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	ListForUser(ctx context.Context, userID string) ([]model.Registration, error)
	Update(ctx context.Context, id string, patch model.EventPatch) (*model.Event, error)
	Cancel(ctx context.Context, id string) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

// RegistrationService is the attendee API.
type RegistrationService interface {
	Register(ctx context.Context, eventID, userID string, notes *string) (*model.Attendee, error)
	Unregister(ctx context.Context, eventID, userID string) error
	IsRegistered(ctx context.Context, eventID, userID string) (bool, error)
	ListAttendees(ctx context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error)
	GetAttendee(ctx context.Context, attendeeID string) (*model.Attendee, error)
	UpdateStatus(ctx context.Context, attendeeID string, status model.Status, notes model.Optional[*string]) (*model.Attendee, error)
	Confirm(ctx context.Context, attendeeID string) (*model.Attendee, error)
	CheckIn(ctx context.Context, attendeeID string) (*model.Attendee, error)
}

// EventHandler serves /v1/events and the registration endpoints under it.
type EventHandler struct {
	Events        EventService
	Registrations RegistrationService
}

func NewEventHandler(ev EventService, regs RegistrationService) *EventHandler {
	return &EventHandler{Events: ev, Registrations: regs}
}

type listResp struct {
	Items    []model.Event `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// List returns upcoming published events:
// ?page=&page_size=&from=RFC3339&q=&location=.
func (h *EventHandler) List(c echo.Context) error {
	page, ok := queryInt(c, "page")
	if !ok || page < 0 {
		return badRequest(c, "invalid page")
	}
	size, ok := queryInt(c, "page_size")
	if !ok || size < 0 {
		return badRequest(c, "invalid page_size")
	}
	var from time.Time
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "from must be RFC3339")
		}
		from = t.UTC()
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f := model.EventFilter{
		From:     from,
		Title:    c.QueryParam("q"),
		Location: c.QueryParam("location"),
		Page:     page,
		PageSize: size,
	}.Normalize(time.Now().UTC())
	items, err := h.Events.List(ctx, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, listResp{Items: items, Page: f.Page, PageSize: f.PageSize})
}

// Get returns one event.  Drafts answer 404 to everyone but their
// organizer and admins.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Events.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !canSee(c, e) {
		return notFound(c, "event not found")
	}
	return c.JSON(http.StatusOK, e)
}

// Create stores a new event organized by the caller.
func (h *EventHandler) Create(c echo.Context) error {
	var in model.EventInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Events.Create(ctx, middleware.UserID(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Update applies a partial update; organizer or admin only.
func (h *EventHandler) Update(c echo.Context) error {
	var patch model.EventPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if e, err := h.managed(ctx, c); e == nil {
		return err
	}
	e, err := h.Events.Update(ctx, c.Param("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Cancel marks the event cancelled; organizer or admin only.
func (h *EventHandler) Cancel(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if e, err := h.managed(ctx, c); e == nil {
		return err
	}
	e, err := h.Events.Cancel(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Delete removes the event and its attendees; organizer or admin only.
func (h *EventHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if e, err := h.managed(ctx, c); e == nil {
		return err
	}
	if err := h.Events.Delete(ctx, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Register signs the caller up for the event.
func (h *EventHandler) Register(c echo.Context) error {
	var in model.RegisterInput
	// the body is optional
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&in); err != nil {
			return badRequest(c, "invalid body")
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Registrations.Register(ctx, c.Param("id"), middleware.UserID(c), in.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// Unregister removes the caller from the event.
func (h *EventHandler) Unregister(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Registrations.Unregister(ctx, c.Param("id"), middleware.UserID(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Registration reports whether the caller is registered for the event.
func (h *EventHandler) Registration(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ok, err := h.Registrations.IsRegistered(ctx, c.Param("id"), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"registered": ok})
}

// Attendees lists the event's attendees, optionally ?status=.  Organizers,
// staff and admins only.
func (h *EventHandler) Attendees(c echo.Context) error {
	var status *model.Status
	if raw := c.QueryParam("status"); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			return badRequest(c, "invalid status")
		}
		status = &st
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Events.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !canSee(c, e) {
		return notFound(c, "event not found")
	}
	if !canManage(c, e) && middleware.Role(c) != model.RoleStaff {
		return forbidden(c, "only the organizer, staff or admins may list attendees")
	}
	items, err := h.Registrations.ListAttendees(ctx, e.ID, status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// MyEvents lists the caller's registrations.
func (h *EventHandler) MyEvents(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Events.ListForUser(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// managed loads the path event and checks the caller may manage it.  A nil
// event means the refusal has been written; err is the write result.
func (h *EventHandler) managed(ctx context.Context, c echo.Context) (*model.Event, error) {
	e, err := h.Events.Get(ctx, c.Param("id"))
	if err != nil {
		return nil, writeError(c, err)
	}
	if !canSee(c, e) {
		return nil, notFound(c, "event not found")
	}
	if !canManage(c, e) {
		return nil, forbidden(c, "only the organizer or an admin may change this event")
	}
	return e, nil
}
