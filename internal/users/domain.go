package users

import (
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// User represents a user account for management.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Username string
	Email    string
	FullName string
	Password string
	IsAdmin  bool
}

// UpdateInput holds optional changes. Nil fields are left untouched.
type UpdateInput struct {
	Email    *string
	FullName *string
	Password *string
	IsActive *bool
	IsAdmin  *bool
}

// ListFilter narrows user listings.
type ListFilter struct {
	Search   string
	IsActive *bool
	Offset   int
	Limit    int
}

var (
	// ErrNotFound indicates a missing user.
	ErrNotFound = httpx.NewError(httpx.ErrNotFound, "users: user not found")
	// ErrDuplicateUsername indicates the username is taken.
	ErrDuplicateUsername = httpx.NewError(httpx.ErrDuplicate, "users: username already registered")
	// ErrDuplicateEmail indicates the email is taken.
	ErrDuplicateEmail = httpx.NewError(httpx.ErrDuplicate, "users: email already registered")
	// ErrSelfModification blocks admins from disabling or deleting themselves.
	ErrSelfModification = httpx.NewError(httpx.ErrValidation, "users: cannot deactivate or delete your own account")
	// ErrWeakPassword indicates a password below the minimum length.
	ErrWeakPassword = httpx.NewError(httpx.ErrValidation, "users: password must be at least 8 characters")
)

// MinPasswordLength is enforced on create and password change.
const MinPasswordLength = 8
