// README: Eligibility guard for rider actions and owner checks; evaluated on every call.
package membership

import (
	"context"
	"errors"
	"fmt"

	"parcel/internal/pkg/errs"
	"parcel/internal/types"
)

const defaultSuspensionReason = "policy violation"

// Directory is the read-only view of users and memberships owned by the
// account/organization collaborator.
type Directory interface {
	GetUser(ctx context.Context, id types.ID) (*User, error)
	GetMembership(ctx context.Context, userID, orgID types.ID) (*Membership, error)
}

type Guard struct {
	dir Directory
}

func NewGuard(dir Directory) *Guard {
	return &Guard{dir: dir}
}

// CheckRider reports whether the rider may perform a state-changing action on an
// order of orgID. Nothing is cached: suspension can happen between two actions.
//
// A globally inactive rider is rejected before the organization membership is
// consulted, so an org-level "not suspended" never re-enables them.
func (g *Guard) CheckRider(ctx context.Context, riderID, orgID types.ID) error {
	u, err := g.dir.GetUser(ctx, riderID)
	if errors.Is(err, ErrNotFound) {
		return errs.Unauthorized("Rider account not found")
	}
	if err != nil {
		return fmt.Errorf("load rider: %w", err)
	}
	if u.Role != types.RoleRider {
		return errs.Unauthorized("User is not a rider")
	}
	if !u.IsActive {
		return errs.Unauthorized("Rider account is inactive")
	}

	m, err := g.dir.GetMembership(ctx, riderID, orgID)
	if errors.Is(err, ErrNotFound) {
		return errs.Unauthorized("Your membership in this organization is inactive, contact your administrator")
	}
	if err != nil {
		return fmt.Errorf("load rider membership: %w", err)
	}
	if !m.IsActive || m.Role != types.RoleRider {
		return errs.Unauthorized("Your membership in this organization is inactive, contact your administrator")
	}
	if m.IsSuspended {
		reason := defaultSuspensionReason
		if m.SuspensionReason != nil && *m.SuspensionReason != "" {
			reason = *m.SuspensionReason
		}
		return errs.Unauthorized("You are suspended from this organization: %s", reason)
	}
	return nil
}

// CheckOwner answers isOwnerOf(userID, orgID).
func (g *Guard) CheckOwner(ctx context.Context, userID, orgID types.ID) error {
	if orgID == "" {
		return errs.Unauthorized("Organization is required")
	}
	m, err := g.dir.GetMembership(ctx, userID, orgID)
	if errors.Is(err, ErrNotFound) {
		return errs.Unauthorized("You are not an owner of this organization")
	}
	if err != nil {
		return fmt.Errorf("load owner membership: %w", err)
	}
	if m.Role != types.RoleOwner || !m.IsActive || m.IsSuspended {
		return errs.Unauthorized("You are not an owner of this organization")
	}
	return nil
}

// IsOwnerOf is the boolean form of CheckOwner; infrastructure errors are returned.
func (g *Guard) IsOwnerOf(ctx context.Context, userID, orgID types.ID) (bool, error) {
	err := g.CheckOwner(ctx, userID, orgID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errs.ErrAuthorization) {
		return false, nil
	}
	return false, err
}
