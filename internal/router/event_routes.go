package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/handler"
	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
)

// RegisterEvents registers the event, registration and attendee routes.
// Anonymous reads go through the response cache; every write that can
// change a cached page purges it.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, att *handler.AttendeeHandler, cache *middleware.ResponseCache, jwtSecret string) {
	jwt := middleware.JWTAuth(jwtSecret)
	purge := cache.Invalidate()

	public := e.Group("/v1/events", middleware.OptionalJWT(jwtSecret), cache.Middleware())
	public.GET("", h.List)
	public.GET("/:id", h.Get)

	g := e.Group("/v1/events", jwt)
	g.POST("", h.Create, middleware.RequireRole(model.RoleStaff, model.RoleAdmin), purge)
	g.PATCH("/:id", h.Update, purge)
	g.POST("/:id/cancel", h.Cancel, purge)
	g.DELETE("/:id", h.Delete, purge)

	// registrations change attendee_count on cached event pages
	g.POST("/:id/register", h.Register, purge)
	g.DELETE("/:id/register", h.Unregister, purge)
	g.GET("/:id/registration", h.Registration)
	g.GET("/:id/attendees", h.Attendees)

	e.GET("/v1/me/events", h.MyEvents, jwt)

	a := e.Group("/v1/attendees/:id", jwt)
	a.PATCH("/status", att.UpdateStatus, purge)
	a.POST("/confirm", att.Confirm, purge)
	a.POST("/check-in", att.CheckIn)
}
