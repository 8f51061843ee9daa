package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole controls access to the admin triage endpoints.
type UserRole string

const (
	RoleCivilian UserRole = "civilian"
	RoleAdmin    UserRole = "admin"
)

// User is the local record of a reporter. Authentication itself is delegated
// to the external identity provider; we only store the mapping from its
// user ID to our own bookkeeping fields.
type User struct {
	ID         uuid.UUID
	ExternalID string // ID assigned by the identity provider
	Email      string
	Name       string
	Phone      string
	Role       UserRole
	CreatedAt  time.Time
}

// IsAdmin reports whether the user may triage complaints.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
