package auth

import "taskhub.io/internal/model"

// Principal is the authenticated identity attached to a request. TenantID is
// empty only for the platform super admin.
type Principal struct {
	UserID   string     `json:"user_id"`
	Role     model.Role `json:"role"`
	TenantID string     `json:"tenant_id,omitempty"`
}

// IsSuperAdmin reports whether the principal administers the platform.
func (p Principal) IsSuperAdmin() bool {
	return p.Role == model.RoleSuperAdmin
}

// PrincipalOf derives the principal of a stored user.
func PrincipalOf(u model.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, TenantID: u.TenantID}
}
