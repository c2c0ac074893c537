// README: Order service authorizes callers, runs the transition engine and persists transitions.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"parcel/internal/modules/membership"
	"parcel/internal/pkg/errs"
	"parcel/internal/types"
)

const (
	maxTransitionAttempts = 3
	maxNumberAttempts     = 3
	notifyTimeout         = 15 * time.Second
	defaultListLimit      = 20
	maxListLimit          = 100
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error)
	SetRiderLocation(ctx context.Context, id types.ID, coords string) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// People is the membership directory plus the customer's saved locations.
type People interface {
	membership.Directory
	SavedLocations(ctx context.Context, customerID types.ID) ([]membership.SavedLocation, error)
}

type Notifier interface {
	NotifyAssignment(ctx context.Context, o *Order, customer, rider *membership.User) error
}

// StatusPublisher pushes status changes to live viewers of an order.
type StatusPublisher interface {
	PushStatusUpdate(ctx context.Context, orderID types.ID, status Status)
}

// Geocoder resolves a free-form address into a precise "lat,lng" position.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (string, error)
}

type ServiceDeps struct {
	Store    Repository
	People   People
	Notifier Notifier
	Geocoder Geocoder
	Logger   *logrus.Entry
}

type Service struct {
	store     Repository
	people    People
	guard     *membership.Guard
	notifier  Notifier
	geocoder  Geocoder
	publisher StatusPublisher
	log       *logrus.Entry
	now       func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	log := deps.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:    deps.Store,
		people:   deps.People,
		guard:    membership.NewGuard(deps.People),
		notifier: deps.Notifier,
		geocoder: deps.Geocoder,
		log:      log.WithField("component", "order_service"),
		now:      time.Now,
	}
}

// SetPublisher wires the live relay. It must be called before the service
// handles requests.
func (s *Service) SetPublisher(p StatusPublisher) {
	s.publisher = p
}

type CreateCommand struct {
	OrgID              types.ID
	PackageDescription string
	CustomerID         types.ID
	RiderID            types.ID
}

type OwnerLocationCommand struct {
	Label   string
	Precise string
	Address string
}

type ListQuery struct {
	Status *Status
	Limit  int
	Offset int
}

func (s *Service) Create(ctx context.Context, actor types.Actor, cmd CreateCommand) (*Order, error) {
	if actor.Role != types.RoleOwner {
		return nil, errs.Unauthorized("Only organization owners can create orders")
	}
	if err := s.guard.CheckOwner(ctx, actor.UserID, cmd.OrgID); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(cmd.PackageDescription)
	if desc == "" {
		return nil, errs.Invalid("Package description is required")
	}
	if cmd.CustomerID == "" || cmd.RiderID == "" {
		return nil, errs.Invalid("Customer and rider are required")
	}

	customer, err := s.people.GetUser(ctx, cmd.CustomerID)
	if err != nil && !errors.Is(err, membership.ErrNotFound) {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil || customer.Role != types.RoleCustomer || !customer.EmailVerified {
		return nil, errs.NotFound("Customer not found or not verified")
	}
	if err := s.guard.CheckRider(ctx, cmd.RiderID, cmd.OrgID); err != nil {
		return nil, err
	}
	rider, err := s.people.GetUser(ctx, cmd.RiderID)
	if err != nil {
		return nil, fmt.Errorf("load rider: %w", err)
	}

	now := s.now()
	o := &Order{
		ID:                 types.NewID(),
		OrgID:              cmd.OrgID,
		CustomerID:         cmd.CustomerID,
		RiderID:            cmd.RiderID,
		Status:             StatusPending,
		PackageDescription: desc,
		AssignedAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for attempt := 1; ; attempt++ {
		o.OrderNumber = newOrderNumber(now)
		err := s.store.Create(ctx, o)
		if errors.Is(err, ErrDuplicateNumber) && attempt < maxNumberAttempts {
			s.log.WithField("order_number", o.OrderNumber).Warn("order number collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		break
	}

	s.appendEvent(ctx, o.ID, StatusNone, StatusPending, actor)
	s.notifyAssignment(o, customer, rider)
	return o, nil
}

func (s *Service) RiderAccept(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	return s.riderAction(ctx, actor, id, ActionAccept)
}

func (s *Service) MarkPickedUp(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	return s.riderAction(ctx, actor, id, ActionPickUp)
}

func (s *Service) StartTransit(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	return s.riderAction(ctx, actor, id, ActionStartTransit)
}

func (s *Service) MarkArrived(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	return s.riderAction(ctx, actor, id, ActionArrive)
}

func (s *Service) ConfirmDelivery(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	return s.riderAction(ctx, actor, id, ActionConfirmDelivery)
}

func (s *Service) riderAction(ctx context.Context, actor types.Actor, id types.ID, a Action) (*Order, error) {
	if actor.Role != types.RoleRider {
		return nil, errs.Unauthorized("Only the assigned rider can perform this action")
	}
	return s.transition(ctx, actor, id, a, Patch{}, func(ctx context.Context, o *Order) error {
		if o.RiderID != actor.UserID {
			return errs.NotFound("Order not found")
		}
		return s.guard.CheckRider(ctx, actor.UserID, o.OrgID)
	})
}

func (s *Service) SetCustomerLocation(ctx context.Context, actor types.Actor, id types.ID, label string) (*Order, error) {
	if actor.Role != types.RoleCustomer {
		return nil, errs.Unauthorized("Only the customer can set the delivery location")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errs.Invalid("Location label is required")
	}
	saved, err := s.people.SavedLocations(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("load saved locations: %w", err)
	}
	var precise *string
	for _, l := range saved {
		if l.Label == label {
			v := l.Precise
			precise = &v
			break
		}
	}
	if precise == nil {
		return nil, errs.Invalid("Location %q is not one of your saved locations", label)
	}

	p := Patch{CustomerLocationLabel: &label, CustomerLocationPrecise: precise}
	return s.transition(ctx, actor, id, ActionSetLocation, p, func(_ context.Context, o *Order) error {
		if o.CustomerID != actor.UserID {
			return errs.NotFound("Order not found")
		}
		return nil
	})
}

func (s *Service) OwnerSetCustomerLocation(ctx context.Context, actor types.Actor, id types.ID, cmd OwnerLocationCommand) (*Order, error) {
	if actor.Role != types.RoleOwner {
		return nil, errs.Unauthorized("Only organization owners can set a customer location")
	}
	label := strings.TrimSpace(cmd.Label)
	if label == "" {
		return nil, errs.Invalid("Location label is required")
	}
	precise := strings.TrimSpace(cmd.Precise)
	if precise == "" && strings.TrimSpace(cmd.Address) != "" && s.geocoder != nil {
		resolved, err := s.geocoder.Geocode(ctx, cmd.Address)
		if err != nil {
			s.log.WithError(err).WithField("order_id", id).Warn("geocode customer address")
			return nil, errs.Invalid("Address %q could not be resolved", cmd.Address)
		}
		precise = resolved
	}
	if precise == "" {
		return nil, errs.Invalid("Precise location is required")
	}

	p := Patch{CustomerLocationLabel: &label, CustomerLocationPrecise: &precise}
	return s.transition(ctx, actor, id, ActionSetLocation, p, func(ctx context.Context, o *Order) error {
		return s.ownerScope(ctx, actor, o)
	})
}

func (s *Service) Cancel(ctx context.Context, actor types.Actor, id types.ID, reason string) (*Order, error) {
	if _, ok := types.ParseRole(string(actor.Role)); !ok {
		return nil, errs.Unauthorized("Unknown role %q", actor.Role)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled by " + string(actor.Role)
	}
	by := actor.UserID
	p := Patch{CancelledBy: &by, CancellationReason: &reason}
	return s.transition(ctx, actor, id, ActionCancel, p, func(ctx context.Context, o *Order) error {
		return s.visible(ctx, actor, o)
	})
}

func (s *Service) Get(ctx context.Context, actor types.Actor, id types.ID) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(ctx, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, actor types.Actor, q ListQuery) ([]*Order, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		return nil, errs.Invalid("Offset must not be negative")
	}

	f := Filter{Status: q.Status, Limit: q.Limit, Offset: q.Offset}
	uid := actor.UserID
	switch actor.Role {
	case types.RoleOwner:
		if err := s.guard.CheckOwner(ctx, actor.UserID, actor.OrgID); err != nil {
			return nil, err
		}
		org := actor.OrgID
		f.OrgID = &org
	case types.RoleRider:
		f.RiderID = &uid
	case types.RoleCustomer:
		f.CustomerID = &uid
	default:
		return nil, errs.Unauthorized("Unknown role %q", actor.Role)
	}

	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Locate reads an order without caller scoping; used by channel admission.
func (s *Service) Locate(ctx context.Context, id types.ID) (*Order, error) {
	return s.load(ctx, id)
}

// RecordRiderLocation persists the rider's last known position. It reports
// false when the order is already terminal and nothing was written.
func (s *Service) RecordRiderLocation(ctx context.Context, id types.ID, coords string) (bool, error) {
	ok, err := s.store.SetRiderLocation(ctx, id, coords)
	if err != nil {
		return false, fmt.Errorf("record rider location: %w", err)
	}
	return ok, nil
}

type authorizeFunc func(ctx context.Context, o *Order) error

// transition reads the order, resolves the action and writes the new status
// with a compare-and-update. When another writer got there first the order is
// re-read and the action evaluated again, so a losing convergence action still
// lands on confirmed and a stale one fails with a state error.
func (s *Service) transition(ctx context.Context, actor types.Actor, id types.ID, a Action, extra Patch, authorize authorizeFunc) (*Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(ctx, o); err != nil {
			return nil, err
		}
		next, err := Next(o.Status, a)
		if err != nil {
			return nil, err
		}
		if err := ApplyTransition(o.Status, next); err != nil {
			return nil, err
		}

		p := extra
		stamp(&p, a, s.now())
		ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, next, o.StatusVersion, p)
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
		if !ok {
			if attempt < maxTransitionAttempts {
				s.log.WithFields(logrus.Fields{"order_id": o.ID, "action": a, "attempt": attempt}).Debug("status changed concurrently, retrying")
				continue
			}
			return nil, errs.InvalidState("Order was modified concurrently, please retry")
		}

		s.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"from":     o.Status,
			"to":       next,
			"actor":    actor.UserID,
			"role":     actor.Role,
		}).Info("order status changed")
		s.appendEvent(ctx, o.ID, o.Status, next, actor)
		s.pushStatus(o.ID, next)
		return s.load(ctx, o.ID)
	}
}

func (s *Service) load(ctx context.Context, id types.ID) (*Order, error) {
	if id == "" {
		return nil, errs.Invalid("Order id is required")
	}
	o, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.NotFound("Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// visible hides orders outside the caller's scope behind a not-found error.
func (s *Service) visible(ctx context.Context, actor types.Actor, o *Order) error {
	switch actor.Role {
	case types.RoleRider:
		if o.RiderID == actor.UserID {
			return nil
		}
	case types.RoleCustomer:
		if o.CustomerID == actor.UserID {
			return nil
		}
	case types.RoleOwner:
		return s.ownerScope(ctx, actor, o)
	}
	return errs.NotFound("Order not found")
}

func (s *Service) ownerScope(ctx context.Context, actor types.Actor, o *Order) error {
	ok, err := s.guard.IsOwnerOf(ctx, actor.UserID, o.OrgID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("Order not found")
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actor types.Actor) {
	actorID := actor.UserID
	err := s.store.AppendEvent(ctx, &Event{
		OrderID:    id,
		FromStatus: from,
		ToStatus:   to,
		ActorRole:  actor.Role,
		ActorID:    &actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.WithError(err).WithField("order_id", id).Warn("append order state event")
	}
}

func (s *Service) pushStatus(id types.ID, status Status) {
	if s.publisher == nil {
		return
	}
	s.publisher.PushStatusUpdate(context.Background(), id, status)
}

// notifyAssignment never blocks or fails order creation.
func (s *Service) notifyAssignment(o *Order, customer, rider *membership.User) {
	if s.notifier == nil {
		return
	}
	cp := *o
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyAssignment(ctx, &cp, customer, rider); err != nil {
			s.log.WithError(err).WithField("order_id", cp.ID).Warn("assignment notification failed")
		}
	}()
}
