// README: Assignment notifications fanned out to every configured sink with bounded retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"parcel/internal/modules/membership"
	"parcel/internal/modules/order"
)

const EventOrderAssigned = "order_assigned"

type Recipient struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DeviceToken string `json:"-"`
}

// Assignment tells the customer and the rider that an order now links them.
type Assignment struct {
	Type               string    `json:"type"`
	OrderID            string    `json:"order_id"`
	OrderNumber        string    `json:"order_number"`
	OrgID              string    `json:"org_id"`
	PackageDescription string    `json:"package_description"`
	Customer           Recipient `json:"customer"`
	Rider              Recipient `json:"rider"`
	AssignedAt         time.Time `json:"assigned_at"`
}

type Sink interface {
	Name() string
	Deliver(ctx context.Context, a Assignment) error
}

type Dispatcher struct {
	sinks    []Sink
	attempts int
	backoff  time.Duration
	log      *logrus.Entry
}

func NewDispatcher(attempts int, backoff time.Duration, log *logrus.Entry, sinks ...Sink) *Dispatcher {
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{
		sinks:    sinks,
		attempts: attempts,
		backoff:  backoff,
		log:      log.WithField("component", "notify"),
	}
}

// NotifyAssignment delivers to every sink independently; one failing sink
// does not stop the others. The joined error lists the sinks that gave up.
func (d *Dispatcher) NotifyAssignment(ctx context.Context, o *order.Order, customer, rider *membership.User) error {
	a := NewAssignment(o, customer, rider)
	var failed []error
	for _, s := range d.sinks {
		if err := d.deliver(ctx, s, a); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(failed...)
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, a Assignment) error {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = s.Deliver(ctx, a); err == nil {
			return nil
		}
		d.log.WithError(err).WithFields(logrus.Fields{
			"sink":     s.Name(),
			"order_id": a.OrderID,
			"attempt":  attempt,
		}).Warn("notification attempt failed")
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func NewAssignment(o *order.Order, customer, rider *membership.User) Assignment {
	return Assignment{
		Type:               EventOrderAssigned,
		OrderID:            string(o.ID),
		OrderNumber:        o.OrderNumber,
		OrgID:              string(o.OrgID),
		PackageDescription: o.PackageDescription,
		Customer:           recipient(customer),
		Rider:              recipient(rider),
		AssignedAt:         o.AssignedAt.UTC(),
	}
}

func recipient(u *membership.User) Recipient {
	if u == nil {
		return Recipient{}
	}
	r := Recipient{UserID: string(u.ID), Name: u.Name, Email: u.Email}
	if u.DeviceToken != nil {
		r.DeviceToken = *u.DeviceToken
	}
	return r
}
