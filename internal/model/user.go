package model

import "time"

// Role is the authorization role stored on a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleStaff, RoleAdmin:
		return r, true
	}
	return "", false
}

// User mirrors the users table.  PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`           // users.id
	Email        string    `json:"email"`        // users.email (unique, lower-cased)
	DisplayName  string    `json:"display_name"` // users.display_name
	PasswordHash string    `json:"-"`            // users.password_hash
	Role         Role      `json:"role"`         // users.role
	CreatedAt    time.Time `json:"created_at"`   // users.created_at
	UpdatedAt    time.Time `json:"updated_at"`   // users.updated_at
}
