package middleware

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/utils"
)

const secret = "test-secret"

func bearerFor(t *testing.T, userID string, role model.Role) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, string(role), 5)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
}

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "role": string(Role(c))})
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	rec = serve(e, http.MethodGet, "/me", map[string]string{echo.HeaderAuthorization: "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")

	rec = serve(e, http.MethodGet, "/me", map[string]string{echo.HeaderAuthorization: "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", bearerFor(t, "u1", model.RoleStaff))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1","role":"staff"}`, rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/events", whoami, OptionalJWT(secret))

	rec := serve(e, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"","role":""}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/events", bearerFor(t, "u2", model.RoleUser))
	assert.JSONEq(t, `{"user_id":"u2","role":"user"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/events", map[string]string{echo.HeaderAuthorization: "Bearer expired.or.bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.POST("/events", whoami, JWTAuth(secret), RequireRole(model.RoleStaff, model.RoleAdmin))

	tests := []struct {
		role model.Role
		want int
	}{
		{model.RoleUser, http.StatusForbidden},
		{model.RoleStaff, http.StatusOK},
		{model.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		rec := serve(e, http.MethodPost, "/events", bearerFor(t, "u3", tt.role))
		assert.Equal(t, tt.want, rec.Code, tt.role)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/missing", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	serve(e, http.MethodGet, "/ok", nil)
	serve(e, http.MethodGet, "/missing", nil)
	serve(e, http.MethodGet, "/boom", nil)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.EqualValues(t, 404, entries[1].ContextMap()["status"])
}
