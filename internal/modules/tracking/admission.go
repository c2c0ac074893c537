// README: Admission gate for live channels; checks the caller's relationship to the order.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"parcel/internal/modules/order"
	"parcel/internal/pkg/errs"
	"parcel/internal/types"
)

type OrderLocator interface {
	Locate(ctx context.Context, id types.ID) (*order.Order, error)
}

type OwnerChecker interface {
	IsOwnerOf(ctx context.Context, userID, orgID types.ID) (bool, error)
}

type Request struct {
	OrderID string
	UserID  string
	Role    string
}

// Admission is an admitted channel's identity.
type Admission struct {
	OrderID types.ID
	UserID  types.ID
	Role    types.Role
}

type Admitter struct {
	orders OrderLocator
	owners OwnerChecker
}

func NewAdmitter(orders OrderLocator, owners OwnerChecker) *Admitter {
	return &Admitter{orders: orders, owners: owners}
}

// Admit returns a typed *errs.Error for every policy failure; any other error
// is unexpected and should close the channel as an internal error.
func (a *Admitter) Admit(ctx context.Context, req Request) (*Admission, error) {
	if req.OrderID == "" || req.UserID == "" || req.Role == "" {
		return nil, errs.Invalid("orderId, userId and role are required")
	}
	role, ok := types.ParseRole(req.Role)
	if !ok {
		return nil, errs.Invalid("Unknown role %q", req.Role)
	}
	orderID, userID := types.ID(req.OrderID), types.ID(req.UserID)

	o, err := a.orders.Locate(ctx, orderID)
	if err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return nil, err
		}
		return nil, fmt.Errorf("locate order: %w", err)
	}

	switch role {
	case types.RoleRider:
		if o.RiderID != userID {
			return nil, errs.Unauthorized("Not the assigned rider for this order")
		}
	case types.RoleCustomer:
		if o.CustomerID != userID {
			return nil, errs.Unauthorized("Not the customer of this order")
		}
	case types.RoleOwner:
		owner, err := a.owners.IsOwnerOf(ctx, userID, o.OrgID)
		if err != nil {
			return nil, fmt.Errorf("check owner: %w", err)
		}
		if !owner {
			return nil, errs.Unauthorized("Not an owner of this order's organization")
		}
	default:
		return nil, errors.New("unhandled role " + string(role))
	}
	return &Admission{OrderID: orderID, UserID: userID, Role: role}, nil
}

// CloseCode maps an admission error to the websocket close code.
func CloseCode(err error) int {
	if errs.KindOf(err) == errs.KindUnknown {
		return CloseInternalError
	}
	return ClosePolicyViolation
}
