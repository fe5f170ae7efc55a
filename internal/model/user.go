package model

import (
	"time"

	"github.com/google/uuid"
)

// Role names a principal's role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent || r == RoleSupervisor
}

// CanObserve reports whether r may watch sessions it does not own.
func (r Role) CanObserve() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// User is an exam candidate or staff account.
type User struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Role              Role      `json:"role"`
	IsLockedFromStep1 bool      `json:"is_locked_from_step1"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
