// README: Transition engine; resolves each action against the current status.
package order

import (
	"fmt"
	"time"

	"parcel/internal/pkg/errs"
)

type Action string

const (
	ActionAccept          Action = "accept"
	ActionSetLocation     Action = "set_location"
	ActionPickUp          Action = "pick_up"
	ActionStartTransit    Action = "start_transit"
	ActionArrive          Action = "arrive"
	ActionConfirmDelivery Action = "confirm_delivery"
	ActionCancel          Action = "cancel"
)

// ApplyTransition is the last check before any write.
func ApplyTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return errs.InvalidState("Cannot transition from %s to %s", from, to)
	}
	return nil
}

// Next returns the status an action moves the order to from current.
//
// Accept and set-location form a join: whichever arrives first parks the order
// in its intermediate status and the second lands on confirmed. Re-running an
// action whose effect already happened fails instead of doing nothing.
func Next(current Status, a Action) (Status, error) {
	switch a {
	case ActionAccept:
		switch current {
		case StatusPending:
			return StatusRiderAccepted, nil
		case StatusCustomerLocationSet:
			return StatusConfirmed, nil
		default:
			return "", errs.InvalidState("Order cannot be accepted in its current state (%s)", current)
		}
	case ActionSetLocation:
		switch current {
		case StatusPending:
			return StatusCustomerLocationSet, nil
		case StatusRiderAccepted:
			return StatusConfirmed, nil
		default:
			return "", errs.InvalidState("Customer location cannot be set in the current state (%s)", current)
		}
	case ActionPickUp:
		return step(current, StatusConfirmed, StatusPackagePickedUp)
	case ActionStartTransit:
		return step(current, StatusPackagePickedUp, StatusInTransit)
	case ActionArrive:
		return step(current, StatusInTransit, StatusArrivedAtLocation)
	case ActionConfirmDelivery:
		return step(current, StatusArrivedAtLocation, StatusDelivered)
	case ActionCancel:
		switch current {
		case StatusDelivered:
			return "", errs.InvalidState("Delivered orders cannot be cancelled")
		case StatusCancelled:
			return "", errs.InvalidState("Order is already cancelled")
		default:
			return StatusCancelled, nil
		}
	default:
		return "", fmt.Errorf("unknown order action %q", a)
	}
}

func step(current, want, to Status) (Status, error) {
	if current != want {
		return "", errs.InvalidState("Cannot transition from %s to %s", current, to)
	}
	return to, nil
}

// stamp sets the timestamp owned by the action. Convergence actions record their
// own time even when the resulting status is confirmed.
func stamp(p *Patch, a Action, now time.Time) {
	switch a {
	case ActionAccept:
		p.RiderAcceptedAt = &now
	case ActionSetLocation:
		p.CustomerLocationSetAt = &now
	case ActionPickUp:
		p.PackagePickedUpAt = &now
	case ActionStartTransit:
		p.DeliveryStartedAt = &now
	case ActionArrive:
		p.ArrivedAtLocationAt = &now
	case ActionConfirmDelivery:
		p.DeliveredAt = &now
	case ActionCancel:
		p.CancelledAt = &now
	}
}
