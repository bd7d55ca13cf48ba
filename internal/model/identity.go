package model

import "github.com/google/uuid"

// Role values carried in access tokens
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleSuperUser = "superuser"
)

// Identity is the authenticated caller. The core trusts it as given.
type Identity struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Role      string
}

// IsAdmin reports whether the caller may decide on company orders.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperUser
}
