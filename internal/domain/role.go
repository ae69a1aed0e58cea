package domain

// Role is the verified capability tier carried on an authenticated identity.
type Role string

const (
	RoleUser  Role = "USER"
	RoleStaff Role = "STAFF"
)

// IsValid reports whether the role is a recognized tier.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleStaff
}

// CanManageQueue reports whether the role may advance and complete lines and
// view staff dashboards.
func (r Role) CanManageQueue() bool {
	return r == RoleStaff
}
