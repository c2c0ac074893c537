package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"parcel/internal/modules/membership"
	"parcel/internal/types"
)

// memStore is an in-memory Repository with the same compare-and-update
// semantics as Store.
type memStore struct {
	mu      sync.Mutex
	orders  map[types.ID]Order
	numbers map[string]bool
	events  []Event

	// duplicates makes the next N Create calls report a number collision.
	duplicates int
	// beforeUpdate runs once, outside the lock, ahead of the next UpdateStatus.
	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[types.ID]Order),
		numbers: make(map[string]bool),
	}
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicates > 0 {
		m.duplicates--
		return ErrDuplicateNumber
	}
	if m.numbers[o.OrderNumber] {
		return ErrDuplicateNumber
	}
	m.numbers[o.OrderNumber] = true
	m.orders[o.ID] = *o
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if f.OrgID != nil && o.OrgID != *f.OrgID {
			continue
		}
		if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
			continue
		}
		if f.RiderID != nil && o.RiderID != *f.RiderID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
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

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error) {
	m.mu.Lock()
	hook := m.beforeUpdate
	m.beforeUpdate = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	applyPatch(&o, p)
	m.orders[id] = o
	return true, nil
}

func (m *memStore) SetRiderLocation(_ context.Context, id types.ID, coords string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status.IsTerminal() {
		return false, nil
	}
	o.RiderCurrentLocation = &coords
	m.orders[id] = o
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) eventsFor(id types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out
}

// force overwrites the stored status, bypassing the transition rules.
func (m *memStore) force(id types.ID, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Status = s
	o.StatusVersion++
	m.orders[id] = o
}

func applyPatch(o *Order, p Patch) {
	set := func(dst **time.Time, v *time.Time) {
		if v != nil {
			*dst = v
		}
	}
	set(&o.RiderAcceptedAt, p.RiderAcceptedAt)
	set(&o.CustomerLocationSetAt, p.CustomerLocationSetAt)
	set(&o.PackagePickedUpAt, p.PackagePickedUpAt)
	set(&o.DeliveryStartedAt, p.DeliveryStartedAt)
	set(&o.ArrivedAtLocationAt, p.ArrivedAtLocationAt)
	set(&o.DeliveredAt, p.DeliveredAt)
	set(&o.CancelledAt, p.CancelledAt)
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

type notification struct {
	order    Order
	customer *membership.User
	rider    *membership.User
}

type chanNotifier struct {
	sent chan notification
	err  error
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{sent: make(chan notification, 8)}
}

func (n *chanNotifier) NotifyAssignment(_ context.Context, o *Order, customer, rider *membership.User) error {
	n.sent <- notification{order: *o, customer: customer, rider: rider}
	return n.err
}

type statusPush struct {
	orderID types.ID
	status  Status
}

type recordingPublisher struct {
	mu     sync.Mutex
	pushed []statusPush
}

func (p *recordingPublisher) PushStatusUpdate(_ context.Context, orderID types.ID, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, statusPush{orderID: orderID, status: status})
}

func (p *recordingPublisher) statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, 0, len(p.pushed))
	for _, s := range p.pushed {
		out = append(out, s.status)
	}
	return out
}

type stubGeocoder struct {
	coords string
	err    error
}

func (g stubGeocoder) Geocode(context.Context, string) (string, error) {
	return g.coords, g.err
}
