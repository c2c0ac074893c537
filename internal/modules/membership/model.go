// README: Membership facts consumed read-only by the order core.
package membership

import (
	"errors"

	"parcel/internal/types"
)

var ErrNotFound = errors.New("membership record not found")

type User struct {
	ID            types.ID
	Role          types.Role
	Name          string
	Email         string
	IsActive      bool
	EmailVerified bool
	DeviceToken   *string
}

type Membership struct {
	UserID           types.ID
	OrgID            types.ID
	Role             types.Role
	IsActive         bool
	IsSuspended      bool
	SuspensionReason *string
}

// SavedLocation is one of a customer's stored delivery locations.
type SavedLocation struct {
	Label   string
	Precise string
}
