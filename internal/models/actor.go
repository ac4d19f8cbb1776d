package models

// Roles understood by the authorization evaluator.
const (
	RoleSales      = "sales"
	RoleBuilder    = "builder"
	RoleDual       = "dual"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Actor is the authenticated caller as supplied by the authentication
// collaborator. The engine trusts these fields verbatim.
type Actor struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Approved bool   `json:"approved"`
}
