// README: Common identifier, role and caller types used across modules.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// Role is the relationship a caller has to an order or organization.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleRider    Role = "rider"
	RoleCustomer Role = "customer"
)

// Roles lists every role in slot order.
var Roles = [...]Role{RoleRider, RoleCustomer, RoleOwner}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleRider, RoleCustomer:
		return Role(s), true
	default:
		return "", false
	}
}

// Actor carries the authorization facts resolved upstream for a caller.
// OrgID is empty for customers, who do not belong to an organization.
type Actor struct {
	UserID ID
	OrgID  ID
	Role   Role
}
