package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel/internal/modules/order"
	"parcel/internal/types"
)

func newTestRelay(t *testing.T) (*Relay, *Registry, *fakeRecorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := NewRegistry()
	rec := newFakeRecorder()
	relay := NewRelay(rec, NewLocalBus(reg), logrus.NewEntry(logger))
	relay.now = func() time.Time { return time.Date(2026, 10, 17, 9, 45, 12, 0, time.UTC) }
	return relay, reg, rec
}

func TestHandlePositionBroadcastsToGroup(t *testing.T) {
	relay, reg, rec := newTestRelay(t)
	rider, customer, owner, other := newFakeConn(), newFakeConn(), newFakeConn(), newFakeConn()
	reg.Attach("o1", types.RoleRider, rider)
	reg.Attach("o1", types.RoleCustomer, customer)
	reg.Attach("o1", types.RoleOwner, owner)
	reg.Attach("o2", types.RoleCustomer, other)

	adm := &Admission{OrderID: "o1", UserID: "rider-1", Role: types.RoleRider}
	require.NoError(t, relay.HandleInbound(context.Background(), adm, []byte(`{"coords":"1,2"}`)))

	assert.Equal(t, "1,2", rec.positions["o1"])
	for _, c := range []*fakeConn{rider, customer, owner} {
		got := c.received()
		require.Len(t, got, 1)
		assert.Equal(t, TypeLocationUpdate, got[0].Type)
		assert.Equal(t, "1,2", got[0].Location)
		assert.Equal(t, 2026, got[0].Timestamp.Year())
	}
	assert.Empty(t, other.received())
}

func TestNonRiderInboundIgnored(t *testing.T) {
	relay, reg, rec := newTestRelay(t)
	customer := newFakeConn()
	reg.Attach("o1", types.RoleCustomer, customer)

	adm := &Admission{OrderID: "o1", UserID: "cust-1", Role: types.RoleCustomer}
	require.NoError(t, relay.HandleInbound(context.Background(), adm, []byte(`{"coords":"9,9"}`)))

	assert.Empty(t, rec.positions)
	assert.Empty(t, customer.received())
}

func TestMalformedPositionIgnored(t *testing.T) {
	relay, reg, rec := newTestRelay(t)
	reg.Attach("o1", types.RoleRider, newFakeConn())
	adm := &Admission{OrderID: "o1", UserID: "rider-1", Role: types.RoleRider}

	assert.NoError(t, relay.HandleInbound(context.Background(), adm, []byte(`not json`)))
	assert.NoError(t, relay.HandleInbound(context.Background(), adm, []byte(`{"coords":"  "}`)))
	assert.Empty(t, rec.positions)
}

func TestPositionOnClosedOrderNotRelayed(t *testing.T) {
	relay, reg, rec := newTestRelay(t)
	rec.terminal["o1"] = true
	customer := newFakeConn()
	reg.Attach("o1", types.RoleCustomer, customer)

	require.NoError(t, relay.HandlePosition(context.Background(), "o1", "1,2"))
	assert.Empty(t, customer.received())
}

func TestPositionPersistFailureReturned(t *testing.T) {
	relay, reg, rec := newTestRelay(t)
	rec.err = errors.New("db down")
	customer := newFakeConn()
	reg.Attach("o1", types.RoleCustomer, customer)

	adm := &Admission{OrderID: "o1", UserID: "rider-1", Role: types.RoleRider}
	assert.Error(t, relay.HandleInbound(context.Background(), adm, []byte(`{"coords":"1,2"}`)))
	assert.Empty(t, customer.received())
}

func TestPositionsKeepArrivalOrder(t *testing.T) {
	relay, reg, _ := newTestRelay(t)
	owner := newFakeConn()
	reg.Attach("o1", types.RoleOwner, owner)

	coords := []string{"1,1", "1,2", "1,3", "1,4"}
	for _, c := range coords {
		require.NoError(t, relay.HandlePosition(context.Background(), "o1", c))
	}
	got := owner.received()
	require.Len(t, got, len(coords))
	for i, c := range coords {
		assert.Equal(t, c, got[i].Location)
	}
}

func TestPushStatusUpdate(t *testing.T) {
	relay, reg, _ := newTestRelay(t)
	customer, owner := newFakeConn(), newFakeConn()
	reg.Attach("o1", types.RoleCustomer, customer)
	reg.Attach("o1", types.RoleOwner, owner)

	relay.PushStatusUpdate(context.Background(), "o1", order.StatusConfirmed)

	for _, c := range []*fakeConn{customer, owner} {
		got := c.received()
		require.Len(t, got, 1)
		assert.Equal(t, TypeStatusUpdate, got[0].Type)
		assert.Equal(t, "confirmed", got[0].Status)
	}

	// No backlog for a channel that joins afterwards.
	late := newFakeConn()
	reg.Attach("o1", types.RoleRider, late)
	assert.Empty(t, late.received())
}
