package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
)

// AttendeeHandler serves /v1/attendees/:id.
type AttendeeHandler struct {
	Events        EventService
	Registrations RegistrationService
}

func NewAttendeeHandler(ev EventService, regs RegistrationService) *AttendeeHandler {
	return &AttendeeHandler{Events: ev, Registrations: regs}
}

// UpdateStatus sets an attendee's status.  Attendees may only decline
// their own registration; organizers and admins may set any status.
func (h *AttendeeHandler) UpdateStatus(c echo.Context) error {
	var in model.StatusInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	status, ok := model.ParseStatus(in.Status)
	if !ok {
		return badRequest(c, "invalid status")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, e, err := h.load(ctx, c)
	if a == nil {
		return err
	}
	self := a.UserID == middleware.UserID(c)
	switch {
	case canManage(c, e):
	case self && status == model.StatusDeclined:
	default:
		return forbidden(c, "not allowed to set this status")
	}
	out, err := h.Registrations.UpdateStatus(ctx, a.ID, status, in.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Confirm moves a pending attendee to confirmed; organizer or admin only.
func (h *AttendeeHandler) Confirm(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, e, err := h.load(ctx, c)
	if a == nil {
		return err
	}
	if !canManage(c, e) {
		return forbidden(c, "only the organizer or an admin may confirm attendees")
	}
	out, err := h.Registrations.Confirm(ctx, a.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// CheckIn records arrival of a confirmed attendee.  Organizers, staff and
// admins only.
func (h *AttendeeHandler) CheckIn(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, e, err := h.load(ctx, c)
	if a == nil {
		return err
	}
	if !canManage(c, e) && middleware.Role(c) != model.RoleStaff {
		return forbidden(c, "only the organizer, staff or admins may check in attendees")
	}
	out, err := h.Registrations.CheckIn(ctx, a.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// load fetches the path attendee and its event.  A nil attendee means the
// error response has been written; err is the write result.
func (h *AttendeeHandler) load(ctx context.Context, c echo.Context) (*model.Attendee, *model.Event, error) {
	a, err := h.Registrations.GetAttendee(ctx, c.Param("id"))
	if err != nil {
		return nil, nil, writeError(c, err)
	}
	e, err := h.Events.Get(ctx, a.EventID)
	if err != nil {
		return nil, nil, writeError(c, err)
	}
	return a, e, nil
}
