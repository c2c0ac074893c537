// README: Location relay; persists rider positions and pushes location and status updates to an order's viewers.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"parcel/internal/modules/order"
	"parcel/internal/pkg/errs"
	"parcel/internal/types"
)

const publishTimeout = 5 * time.Second

type LocationRecorder interface {
	RecordRiderLocation(ctx context.Context, id types.ID, coords string) (bool, error)
}

type Relay struct {
	recorder LocationRecorder
	bus      Bus
	log      *logrus.Entry
	now      func() time.Time
}

func NewRelay(recorder LocationRecorder, bus Bus, log *logrus.Entry) *Relay {
	return &Relay{
		recorder: recorder,
		bus:      bus,
		log:      log.WithField("component", "relay"),
		now:      time.Now,
	}
}

// HandleInbound processes one message from an admitted channel. Only rider
// channels carry positions; anything else is logged and dropped. Malformed
// payloads are ignored, persistence failures are returned.
func (r *Relay) HandleInbound(ctx context.Context, adm *Admission, raw []byte) error {
	log := r.log.WithFields(logrus.Fields{"order_id": adm.OrderID, "role": adm.Role})
	if adm.Role != types.RoleRider {
		log.Debug("ignoring inbound message from non-rider channel")
		return nil
	}
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		log.WithError(err).Warn("malformed position message")
		return nil
	}
	err := r.HandlePosition(ctx, adm.OrderID, in.Coords)
	if errs.KindOf(err) == errs.KindValidation {
		log.WithError(err).Warn("rejected position message")
		return nil
	}
	return err
}

// HandlePosition stores coords as the rider's current location and then
// broadcasts a location_update to every occupied slot of the order.
func (r *Relay) HandlePosition(ctx context.Context, orderID types.ID, coords string) error {
	coords = strings.TrimSpace(coords)
	if coords == "" {
		return errs.Invalid("coords is required")
	}
	ok, err := r.recorder.RecordRiderLocation(ctx, orderID, coords)
	if err != nil {
		return err
	}
	if !ok {
		r.log.WithField("order_id", orderID).Debug("order closed, position not relayed")
		return nil
	}
	return r.publish(ctx, orderID, Outbound{
		Type:      TypeLocationUpdate,
		Location:  coords,
		Timestamp: r.now().UTC(),
	})
}

// PushStatusUpdate is fire-and-forget: failures are logged and late joiners
// get no backlog.
func (r *Relay) PushStatusUpdate(ctx context.Context, orderID types.ID, status order.Status) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := r.publish(ctx, orderID, Outbound{
		Type:      TypeStatusUpdate,
		Status:    string(status),
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		r.log.WithError(err).WithField("order_id", orderID).Warn("status update not published")
	}
}

func (r *Relay) publish(ctx context.Context, orderID types.ID, m Outbound) error {
	msg, err := encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return r.bus.Publish(ctx, orderID, msg)
}
