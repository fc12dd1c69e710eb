package shared

import "github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = httpx.NewError(httpx.ErrUnauthorized, "invalid credentials")
	// ErrInactiveUser is returned for authenticated but disabled accounts.
	ErrInactiveUser = httpx.NewError(httpx.ErrUnauthorized, "inactive user")
	// ErrAdminRequired indicates the caller lacks the admin role.
	ErrAdminRequired = httpx.NewError(httpx.ErrForbidden, "admin privileges required")
)
