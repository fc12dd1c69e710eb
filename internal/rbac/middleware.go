package rbac

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Middleware wires role checks for HTTP handlers. It expects the auth
// middleware to have stored a principal in the request context.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user holds at least one of the roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.NewError(httpx.ErrUnauthorized, "not authenticated"))
				return
			}
			if !principal.IsActive {
				httpx.RespondError(w, shared.ErrInactiveUser)
				return
			}
			if len(normalized) == 0 || hasAnyRole(RolesOf(principal), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.Int64("user_id", principal.UserID),
					slog.String("path", r.URL.Path),
					slog.Any("required", normalized),
				)
			}
			httpx.RespondError(w, shared.ErrAdminRequired)
		})
	}
}

// RequireAdmin restricts the route to admins.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.RequireAny(RoleAdmin)
}

// IsAdmin reports whether the request principal is an active admin.
func IsAdmin(r *http.Request) bool {
	p, ok := shared.PrincipalFromContext(r.Context())
	return ok && p.IsActive && p.IsAdmin
}

func normalizeRoles(roles []string) []string {
	unique := make(map[string]struct{}, len(roles))
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := unique[role]; ok {
			continue
		}
		unique[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}

func hasAnyRole(granted []string, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; ok {
			return true
		}
	}
	return false
}
