package handler // HTTP handlers for the events API

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/service"
)

// requestTimeout bounds the store work of one request.  Transactions carry
// their own shorter timeout inside the services.
const requestTimeout = 10 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusFor maps a service error kind onto an HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": kind, "message": text}.  Internal
// details never reach the client.
func writeError(c echo.Context, err error) error {
	kind := service.KindOf(err)
	return c.JSON(statusFor(kind), echo.Map{"error": string(kind), "message": service.MessageOf(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(service.KindValidation), "message": msg})
}

func forbidden(c echo.Context, msg string) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": string(service.KindForbidden), "message": msg})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": string(service.KindNotFound), "message": msg})
}

// canManage reports whether the caller may administer e: its organizer or
// an admin.
func canManage(c echo.Context, e *model.Event) bool {
	return middleware.Role(c) == model.RoleAdmin || middleware.UserID(c) == e.OrganizerID
}

// canSee reports whether the caller may read e.  Drafts are visible only to
// those who can manage them.
func canSee(c echo.Context, e *model.Event) bool {
	return e.IsPublished || canManage(c, e)
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
