// Package membershiptest provides an in-memory membership directory for tests.
package membershiptest

import (
	"context"
	"sync"

	"parcel/internal/modules/membership"
	"parcel/internal/types"
)

type Directory struct {
	mu          sync.Mutex
	users       map[types.ID]membership.User
	memberships map[[2]types.ID]membership.Membership
	locations   map[types.ID][]membership.SavedLocation
}

func NewDirectory() *Directory {
	return &Directory{
		users:       make(map[types.ID]membership.User),
		memberships: make(map[[2]types.ID]membership.Membership),
		locations:   make(map[types.ID][]membership.SavedLocation),
	}
}

func (d *Directory) PutUser(u membership.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) PutMembership(m membership.Membership) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[[2]types.ID{m.UserID, m.OrgID}] = m
}

func (d *Directory) PutLocation(customerID types.ID, l membership.SavedLocation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locations[customerID] = append(d.locations[customerID], l)
}

// Suspend flips the suspension flag of an existing membership.
func (d *Directory) Suspend(userID, orgID types.ID, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]types.ID{userID, orgID}
	m := d.memberships[key]
	m.IsSuspended = true
	if reason != "" {
		m.SuspensionReason = &reason
	}
	d.memberships[key] = m
}

// Owner registers an active owner of orgID.
func (d *Directory) Owner(id, orgID types.ID) {
	d.PutUser(membership.User{ID: id, Role: types.RoleOwner, IsActive: true, EmailVerified: true})
	d.PutMembership(membership.Membership{UserID: id, OrgID: orgID, Role: types.RoleOwner, IsActive: true})
}

// Rider registers an active, unsuspended rider of orgID.
func (d *Directory) Rider(id, orgID types.ID) {
	d.PutUser(membership.User{ID: id, Role: types.RoleRider, IsActive: true, EmailVerified: true})
	d.PutMembership(membership.Membership{UserID: id, OrgID: orgID, Role: types.RoleRider, IsActive: true})
}

// Customer registers a verified customer.
func (d *Directory) Customer(id types.ID) {
	d.PutUser(membership.User{ID: id, Role: types.RoleCustomer, IsActive: true, EmailVerified: true})
}

func (d *Directory) GetUser(_ context.Context, id types.ID) (*membership.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return &u, nil
}

func (d *Directory) GetMembership(_ context.Context, userID, orgID types.ID) (*membership.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memberships[[2]types.ID{userID, orgID}]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return &m, nil
}

func (d *Directory) SavedLocations(_ context.Context, customerID types.ID) ([]membership.SavedLocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]membership.SavedLocation, len(d.locations[customerID]))
	copy(out, d.locations[customerID])
	return out, nil
}
