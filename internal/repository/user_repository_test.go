package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestUserCreateNormalizesEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db, database.MySQL)
	now := time.Now().UTC()
	u := &model.User{ID: userID, Email: "  Ada@Example.COM ", DisplayName: "Ada", PasswordHash: "h", Role: model.RoleUser, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(userID, "ada@example.com", "Ada", "h", "user", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ada@example.com'"})

	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, "ada@example.com", u.Email)
	assert.ErrorIs(t, repo.Create(context.Background(), u), ErrDuplicate)
}

func TestUserLookups(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db, database.Postgres)
	now := time.Now().UTC()
	cols := []string{"id", "email", "display_name", "password_hash", "role", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1 LIMIT 1`)).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, "ada@example.com", "Ada", "h", "staff", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1 LIMIT 1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	u, err := repo.GetByEmail(context.Background(), "ADA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, u.Role)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserUpdateRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db, database.MySQL)
	q := regexp.QuoteMeta(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`)
	mock.ExpectExec(q).WithArgs("admin", sqlmock.AnyArg(), userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("admin", sqlmock.AnyArg(), "nobody").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateRole(context.Background(), userID, model.RoleAdmin))
	assert.ErrorIs(t, repo.UpdateRole(context.Background(), "nobody", model.RoleAdmin), ErrNotFound)
}

func TestTokenValidateRefresh(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db, database.MySQL)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	cols := []string{"user_id", "expires_at", "revoked_at"}
	q := regexp.QuoteMeta(`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`)

	mock.ExpectQuery(q).WithArgs("live").WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, now.Add(time.Hour), nil))
	mock.ExpectQuery(q).WithArgs("revoked").WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, now.Add(time.Hour), now))
	mock.ExpectQuery(q).WithArgs("expired").WillReturnRows(sqlmock.NewRows(cols).AddRow(userID, now.Add(-time.Second), nil))
	mock.ExpectQuery(q).WithArgs("unknown").WillReturnRows(sqlmock.NewRows(cols))

	id, err := repo.ValidateRefresh(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, userID, id)
	for _, h := range []string{"revoked", "expired", "unknown"} {
		_, err := repo.ValidateRefresh(context.Background(), h)
		assert.ErrorIs(t, err, ErrNotFound, h)
	}
}

func TestTokenRevokeByHashSingleWinner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db, database.MySQL)
	q := regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`)
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "h").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "h").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RevokeByHash(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RevokeByHash(context.Background(), "h")
	require.NoError(t, err)
	assert.False(t, ok)
}
