package rbac

import "github.com/odyssey-erp/odyssey-pos/internal/shared"

// Roles known to the system. Every active account holds RoleUser; accounts
// flagged is_admin additionally hold RoleAdmin.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RolesOf returns the roles granted to p.
func RolesOf(p shared.Principal) []string {
	if !p.IsActive {
		return nil
	}
	if p.IsAdmin {
		return []string{RoleUser, RoleAdmin}
	}
	return []string{RoleUser}
}
