package tracking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel/internal/types"
)

func TestAttachReplacesSlot(t *testing.T) {
	reg := NewRegistry()
	first, second := newFakeConn(), newFakeConn()

	assert.Nil(t, reg.Attach("o1", types.RoleRider, first))
	replaced := reg.Attach("o1", types.RoleRider, second)
	assert.Same(t, first, replaced)

	recipients := reg.Recipients("o1")
	require.Len(t, recipients, 1)
	assert.Same(t, second, recipients[0])
}

func TestDetachIgnoresStaleConn(t *testing.T) {
	reg := NewRegistry()
	first, second := newFakeConn(), newFakeConn()
	reg.Attach("o1", types.RoleCustomer, first)
	reg.Attach("o1", types.RoleCustomer, second)

	assert.False(t, reg.Detach("o1", types.RoleCustomer, first))
	assert.Len(t, reg.Recipients("o1"), 1)

	assert.True(t, reg.Detach("o1", types.RoleCustomer, second))
	assert.Empty(t, reg.Recipients("o1"))
}

func TestEmptyGroupIsDeleted(t *testing.T) {
	reg := NewRegistry()
	rider, customer, owner := newFakeConn(), newFakeConn(), newFakeConn()
	reg.Attach("o1", types.RoleRider, rider)
	reg.Attach("o1", types.RoleCustomer, customer)
	reg.Attach("o1", types.RoleOwner, owner)

	orders, conns := reg.Stats()
	assert.Equal(t, 1, orders)
	assert.Equal(t, 3, conns)

	reg.Detach("o1", types.RoleRider, rider)
	reg.Detach("o1", types.RoleOwner, owner)
	orders, _ = reg.Stats()
	assert.Equal(t, 1, orders)

	reg.Detach("o1", types.RoleCustomer, customer)
	orders, conns = reg.Stats()
	assert.Zero(t, orders)
	assert.Zero(t, conns)
}

func TestBroadcastScopedToOrder(t *testing.T) {
	reg := NewRegistry()
	a1, a2, a3 := newFakeConn(), newFakeConn(), newFakeConn()
	b1 := newFakeConn()
	reg.Attach("a", types.RoleRider, a1)
	reg.Attach("a", types.RoleCustomer, a2)
	reg.Attach("a", types.RoleOwner, a3)
	reg.Attach("b", types.RoleCustomer, b1)

	n := reg.Broadcast("a", []byte(`{"type":"location_update","location":"1,2"}`))
	assert.Equal(t, 3, n)
	for _, c := range []*fakeConn{a1, a2, a3} {
		assert.Len(t, c.received(), 1)
	}
	assert.Empty(t, b1.received())

	assert.Zero(t, reg.Broadcast("nobody", []byte(`{}`)))
}

func TestBroadcastSkipsFullReceiver(t *testing.T) {
	reg := NewRegistry()
	slow, fast := newFakeConn(), newFakeConn()
	slow.full = true
	reg.Attach("o1", types.RoleCustomer, slow)
	reg.Attach("o1", types.RoleOwner, fast)

	n := reg.Broadcast("o1", []byte(`{"type":"status_update","status":"confirmed"}`))
	assert.Equal(t, 1, n)
	assert.Len(t, fast.received(), 1)
}

func TestRegistryConcurrentUse(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := types.ID([]string{"o1", "o2", "o3"}[i%3])
			role := types.Roles[i%len(types.Roles)]
			c := newFakeConn()
			reg.Attach(id, role, c)
			reg.Broadcast(id, []byte(`{}`))
			reg.Snapshot()
			reg.Detach(id, role, c)
		}(i)
	}
	wg.Wait()

	for _, s := range reg.Snapshot() {
		reg.Detach(s.OrderID, s.Role, s.Conn)
	}
	orders, conns := reg.Stats()
	assert.Zero(t, orders)
	assert.Zero(t, conns)
}
