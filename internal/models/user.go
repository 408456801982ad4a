package models

import "time"

// UserRole is the role carried in access tokens.
type UserRole string

const (
	// RoleAdmin manages every period and may clear schedules.
	RoleAdmin UserRole = "ADMIN"
	// RoleScheduler runs generation, cleanup and exports.
	RoleScheduler UserRole = "SCHEDULER"
	// RoleViewer may read status, conflicts and exports.
	RoleViewer UserRole = "VIEWER"
)

// User is an operator of the timetable API.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"fullName"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}
