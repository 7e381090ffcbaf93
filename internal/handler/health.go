package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the service and its dependencies answer.
type HealthHandler struct {
	DB    Pinger
	Redis *redis.Client // optional
}

// Health is used by load balancers and monitoring systems.  It returns 200
// when the database answers and 503 otherwise; Redis is reported but never
// fails the check because the service degrades without it.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := echo.Map{"status": "ok", "db": "ok"}
	status := http.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		body["status"], body["db"] = "degraded", "down"
		status = http.StatusServiceUnavailable
	}
	switch {
	case h.Redis == nil:
		body["redis"] = "disabled"
	case h.Redis.Ping(ctx).Err() != nil:
		body["redis"] = "down"
	default:
		body["redis"] = "ok"
	}
	return c.JSON(status, body)
}
