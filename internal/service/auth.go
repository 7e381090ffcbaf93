package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/repository"
	"github.com/iliyamo/community-events/internal/utils"
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role) error
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
}

// TokenPart is one issued token and its expiry.
type TokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Session is returned by register, login and refresh.
type Session struct {
	User    *model.User `json:"user"`
	Access  TokenPart   `json:"access"`
	Refresh TokenPart   `json:"refresh"`
}

// Auth issues and revokes credentials.
type Auth struct {
	users  UserStore
	tokens TokenStore
	cfg    config.AuthConfig
	log    *zap.Logger
}

func NewAuth(users UserStore, tokens TokenStore, cfg config.AuthConfig, log *zap.Logger) *Auth {
	return &Auth{users: users, tokens: tokens, cfg: cfg, log: log}
}

// Register creates a user with the default role and returns a session.
func (a *Auth) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	const op = "register_user"
	email = repository.NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	switch {
	case email == "" || password == "":
		return nil, wrap(invalid("email/password required"), op, "", "")
	case !validEmail(email):
		return nil, wrap(invalid("invalid email"), op, "", "")
	case len(password) < utils.MinPasswordLen:
		return nil, wrap(invalid("password too short"), op, "", "")
	case displayName == "":
		return nil, wrap(invalid("display_name required"), op, "", "")
	case len([]rune(displayName)) > 120:
		return nil, wrap(invalid("display_name too long"), op, "", "")
	}
	hash, err := utils.HashPassword(password, a.cfg.BcryptCost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, wrap(invalid("password too long"), op, "", "")
	}
	if err != nil {
		return nil, a.fail(op, "", err)
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, wrap(ErrEmailExists, op, "", "")
		}
		return nil, a.fail(op, "", err)
	}
	a.log.Info("user registered", zap.String("user_id", u.ID))
	return a.issue(ctx, u)
}

// Login verifies credentials and returns a new session.
func (a *Auth) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "login"
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, wrap(invalid("email/password required"), op, "", "")
	}
	u, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrInvalidCredentials, op, "", "")
	}
	if err != nil {
		return nil, a.fail(op, "", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, wrap(ErrInvalidCredentials, op, "", u.ID)
	}
	return a.issue(ctx, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair issued.  Of two concurrent rotations of one token only one wins.
func (a *Auth) Refresh(ctx context.Context, raw string) (*Session, error) {
	const op = "refresh"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, wrap(invalid("refresh_token required"), op, "", "")
	}
	hash := utils.HashRefreshRaw(raw)
	userID, err := a.tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrInvalidRefresh, op, "", "")
	}
	if err != nil {
		return nil, a.fail(op, "", err)
	}
	revoked, err := a.tokens.RevokeByHash(ctx, hash)
	if err != nil {
		return nil, a.fail(op, userID, err)
	}
	if !revoked {
		return nil, wrap(ErrInvalidRefresh, op, "", userID)
	}
	u, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrInvalidRefresh, op, "", userID)
	}
	if err != nil {
		return nil, a.fail(op, userID, err)
	}
	return a.issue(ctx, u)
}

// Logout revokes one refresh token when raw is given, otherwise every
// token of userID.
func (a *Auth) Logout(ctx context.Context, userID, raw string) error {
	const op = "logout"
	raw = strings.TrimSpace(raw)
	switch {
	case raw != "":
		hash := utils.HashRefreshRaw(raw)
		if _, err := a.tokens.ValidateRefresh(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return wrap(ErrInvalidRefresh, op, "", userID)
			}
			return a.fail(op, userID, err)
		}
		if _, err := a.tokens.RevokeByHash(ctx, hash); err != nil {
			return a.fail(op, userID, err)
		}
	case userID != "":
		if err := a.tokens.RevokeAllForUser(ctx, userID); err != nil {
			return a.fail(op, userID, err)
		}
	default:
		return wrap(invalid("provide Authorization header or refresh_token"), op, "", "")
	}
	return nil
}

// Me loads the caller's account.
func (a *Auth) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, wrap(ErrUserNotFound, "me", "", userID)
	}
	if err != nil {
		return nil, a.fail("me", userID, err)
	}
	return u, nil
}

// SetRole changes a user's role.  Existing access tokens keep the old role
// until they expire.
func (a *Auth) SetRole(ctx context.Context, userID string, role model.Role) (*model.User, error) {
	const op = "set_role"
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, wrap(invalid("invalid role"), op, "", userID)
	}
	if !validID(userID) {
		return nil, wrap(ErrUserNotFound, op, "", userID)
	}
	if err := a.users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wrap(ErrUserNotFound, op, "", userID)
		}
		return nil, a.fail(op, userID, err)
	}
	a.log.Info("user role changed", zap.String("user_id", userID), zap.String("role", string(role)))
	return a.Me(ctx, userID)
}

// issue signs an access token and stores a fresh refresh token for u.
func (a *Auth) issue(ctx context.Context, u *model.User) (*Session, error) {
	access, err := utils.NewAccessToken(a.cfg.JWTSecret, u.ID, string(u.Role), a.cfg.AccessTTLMin)
	if err != nil {
		return nil, a.fail("issue_access", u.ID, err)
	}
	refresh, err := utils.NewRefreshToken(a.cfg.RefreshTTLDays)
	if err != nil {
		return nil, a.fail("issue_refresh", u.ID, err)
	}
	if err := a.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, a.fail("save_refresh", u.ID, err)
	}
	return &Session{
		User:    u,
		Access:  TokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: TokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

func (a *Auth) fail(op, userID string, err error) error {
	return logFailure(a.log, wrap(err, op, "", userID))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
