package middleware

// identity.go holds the accessors for the caller identity that JWTAuth
// stores on the echo context.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/model"
)

// Context keys written by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated user's role, or "" for anonymous requests.
func Role(c echo.Context) model.Role {
	if v, ok := c.Get(ctxRole).(string); ok {
		return model.Role(v)
	}
	return ""
}

// SetIdentity stores the caller identity on c.
func SetIdentity(c echo.Context, userID string, role model.Role) {
	c.Set(ctxUserID, userID)
	c.Set(ctxRole, string(role))
}

// rateIdentity names the caller for rate limit keys.
func rateIdentity(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
