package models

// Role is the authorization role bound to an identity.
type Role string

const (
	RoleClient     Role = "client"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsAdmin reports whether the role grants admin-broadcast membership.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity is the authenticated principal bound to a connection for its lifetime.
type Identity struct {
	ID              string `json:"id"`
	Role            Role   `json:"role"`
	DisplayName     string `json:"displayName,omitempty"`
	StorefrontCode  string `json:"storefrontCode,omitempty"`
	AssignedAdminID string `json:"assignedAdminId,omitempty"`
}
