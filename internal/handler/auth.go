package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/service"
	"github.com/iliyamo/community-events/internal/utils"
)

// AuthService is the account API the auth endpoints call.
type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Refresh(ctx context.Context, raw string) (*service.Session, error)
	Logout(ctx context.Context, userID, raw string) error
	Me(ctx context.Context, userID string) (*model.User, error)
	SetRole(ctx context.Context, userID string, role model.Role) (*model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth      AuthService
	JWTSecret string
}

func NewAuthHandler(a AuthService, jwtSecret string) *AuthHandler {
	return &AuthHandler{Auth: a, JWTSecret: jwtSecret}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type roleReq struct {
	Role string `json:"role"`
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Auth.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Logout revokes the refresh token in the body, or with only a valid
// bearer token every session of the caller.  It does not require the JWT
// middleware so a client holding just a refresh token can still log out.
func (h *AuthHandler) Logout(c echo.Context) error {
	var userID string
	if raw, ok := bearerToken(c); ok {
		claims, err := utils.ParseAccessToken(h.JWTSecret, raw)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": string(service.KindUnauthorized), "message": "invalid token"})
		}
		userID = claims.Subject
	}
	// An empty or non-JSON body just means no refresh token.
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Auth.Logout(ctx, userID, req.RefreshToken); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.Me(ctx, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetRole changes another user's role (admin only).
func (h *AuthHandler) SetRole(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return badRequest(c, "invalid role")
	}
	id := c.Param("id")
	if id == middleware.UserID(c) && role != model.RoleAdmin {
		return forbidden(c, "admins cannot demote themselves")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.SetRole(ctx, id, role)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func bearerToken(c echo.Context) (string, bool) {
	const prefix = "Bearer "
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}
