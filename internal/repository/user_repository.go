package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/model"
)

// UserRepo persists accounts in the 'users' table.
type UserRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{db: db, dialect: d} }

const userCols = `id, email, display_name, password_hash, role, created_at, updated_at`

// NormalizeEmail lowercases and trims an address; emails are stored and
// looked up in this form.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u.  ErrDuplicate means the email is taken.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	const q = `INSERT INTO users (` + userCols + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(q),
		u.ID, u.Email, u.DisplayName, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	return translate(err)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email = ? LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, r.dialect.Rebind(q), NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = ? LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, r.dialect.Rebind(q), id))
}

// UpdateRole changes a user's role.
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	const q = `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(q), string(role), time.Now().UTC(), id)
	return affectedOne(res, err)
}

func (r *UserRepo) scanOne(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
