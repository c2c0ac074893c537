// README: Order aggregate and status definitions.
package order

import (
	"time"

	"parcel/internal/types"
)

type Status string

const (
	StatusNone                Status = "none"
	StatusPending             Status = "pending"
	StatusRiderAccepted       Status = "rider_accepted"
	StatusCustomerLocationSet Status = "customer_location_set"
	StatusConfirmed           Status = "confirmed"
	StatusPackagePickedUp     Status = "package_picked_up"
	StatusInTransit           Status = "in_transit"
	StatusArrivedAtLocation   Status = "arrived_at_location"
	StatusDelivered           Status = "delivered"
	StatusCancelled           Status = "cancelled"
)

// Statuses lists every persisted status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusRiderAccepted,
	StatusCustomerLocationSet,
	StatusConfirmed,
	StatusPackagePickedUp,
	StatusInTransit,
	StatusArrivedAtLocation,
	StatusDelivered,
	StatusCancelled,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further mutation is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Order struct {
	ID                      types.ID
	OrderNumber             string
	OrgID                   types.ID
	CustomerID              types.ID
	RiderID                 types.ID
	Status                  Status
	StatusVersion           int
	PackageDescription      string
	RiderCurrentLocation    *string
	CustomerLocationLabel   *string
	CustomerLocationPrecise *string
	AssignedAt              time.Time
	RiderAcceptedAt         *time.Time
	CustomerLocationSetAt   *time.Time
	PackagePickedUpAt       *time.Time
	DeliveryStartedAt       *time.Time
	ArrivedAtLocationAt     *time.Time
	DeliveredAt             *time.Time
	CancelledAt             *time.Time
	CancelledBy             *types.ID
	CancellationReason      *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorRole  types.Role
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// Terminal states have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusPending:             {StatusRiderAccepted, StatusCustomerLocationSet, StatusCancelled},
	StatusRiderAccepted:       {StatusConfirmed, StatusCancelled},
	StatusCustomerLocationSet: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:           {StatusPackagePickedUp, StatusCancelled},
	StatusPackagePickedUp:     {StatusInTransit, StatusCancelled},
	StatusInTransit:           {StatusArrivedAtLocation, StatusCancelled},
	StatusArrivedAtLocation:   {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
