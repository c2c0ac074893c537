// Package ordertest provides an in-memory order.Repository for tests outside
// the order package.
package ordertest

import (
	"context"
	"sort"
	"sync"

	"parcel/internal/modules/order"
	"parcel/internal/types"
)

type Store struct {
	mu     sync.Mutex
	orders map[types.ID]order.Order
	events []order.Event
}

func NewStore() *Store {
	return &Store{orders: make(map[types.ID]order.Order)}
}

func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return order.ErrDuplicateNumber
		}
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) Get(_ context.Context, id types.ID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (s *Store) List(_ context.Context, f order.Filter) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if (f.OrgID != nil && o.OrgID != *f.OrgID) ||
			(f.CustomerID != nil && o.CustomerID != *f.CustomerID) ||
			(f.RiderID != nil && o.RiderID != *f.RiderID) ||
			(f.Status != nil && o.Status != *f.Status) {
			continue
		}
		o := o
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id types.ID, from, to order.Status, version int, p order.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	apply(&o, p)
	s.orders[id] = o
	return true, nil
}

func (s *Store) SetRiderLocation(_ context.Context, id types.ID, coords string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status.IsTerminal() {
		return false, nil
	}
	o.RiderCurrentLocation = &coords
	s.orders[id] = o
	return true, nil
}

func (s *Store) AppendEvent(_ context.Context, e *order.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, *e)
	return nil
}

// SetStatus overwrites the stored status without checking transitions.
func (s *Store) SetStatus(id types.ID, st order.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.Status = st
	o.StatusVersion++
	s.orders[id] = o
}

func apply(o *order.Order, p order.Patch) {
	if p.RiderAcceptedAt != nil {
		o.RiderAcceptedAt = p.RiderAcceptedAt
	}
	if p.CustomerLocationSetAt != nil {
		o.CustomerLocationSetAt = p.CustomerLocationSetAt
	}
	if p.PackagePickedUpAt != nil {
		o.PackagePickedUpAt = p.PackagePickedUpAt
	}
	if p.DeliveryStartedAt != nil {
		o.DeliveryStartedAt = p.DeliveryStartedAt
	}
	if p.ArrivedAtLocationAt != nil {
		o.ArrivedAtLocationAt = p.ArrivedAtLocationAt
	}
	if p.DeliveredAt != nil {
		o.DeliveredAt = p.DeliveredAt
	}
	if p.CancelledAt != nil {
		o.CancelledAt = p.CancelledAt
	}
	if p.CancelledBy != nil {
		o.CancelledBy = p.CancelledBy
	}
	if p.CancellationReason != nil {
		o.CancellationReason = p.CancellationReason
	}
	if p.CustomerLocationLabel != nil {
		o.CustomerLocationLabel = p.CustomerLocationLabel
	}
	if p.CustomerLocationPrecise != nil {
		o.CustomerLocationPrecise = p.CustomerLocationPrecise
	}
}
