package model

import (
	"fmt"
	"time"
)

// User represents an account that can log in: customers ordering online,
// pharmacists working the counter, and admins.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCustomer   = "customer"
)

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:      3,
		RolePharmacist: 2,
		RoleCustomer:   1,
	}
	return levels[role] >= levels[minimum]
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks a plaintext password against the length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor is the identity a service call runs as. Store functions that guard
// on roles take it explicitly instead of digging through a user record.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}

// IsStaff reports whether the actor is a pharmacist or admin.
func (a *Actor) IsStaff() bool {
	return a != nil && RoleAtLeast(a.Role, RolePharmacist)
}

// LoggedBy returns the actor's user ID for audit columns, or nil for
// system-initiated mutations.
func (a *Actor) LoggedBy() *int64 {
	if a == nil {
		return nil
	}
	id := a.UserID
	return &id
}
