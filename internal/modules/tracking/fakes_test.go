package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"parcel/internal/modules/order"
	"parcel/internal/pkg/errs"
	"parcel/internal/types"
)

type fakeConn struct {
	mu        sync.Mutex
	msgs      [][]byte
	closeCode int
	full      bool
	seen      time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{seen: time.Now()}
}

func (c *fakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closeCode != 0 {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) Close(code int, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == 0 {
		c.closeCode = code
	}
}

func (c *fakeConn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

func (c *fakeConn) received() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outbound, 0, len(c.msgs))
	for _, m := range c.msgs {
		var o Outbound
		if err := json.Unmarshal(m, &o); err == nil {
			out = append(out, o)
		}
	}
	return out
}

func (c *fakeConn) closedWith() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

type fakeOrders struct {
	orders map[types.ID]*order.Order
	err    error
}

func (f *fakeOrders) Locate(_ context.Context, id types.ID) (*order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, errs.NotFound("Order not found")
	}
	return o, nil
}

type fakeOwners struct {
	owners map[[2]types.ID]bool
	err    error
}

func (f *fakeOwners) IsOwnerOf(_ context.Context, userID, orgID types.ID) (bool, error) {
	return f.owners[[2]types.ID{userID, orgID}], f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	positions map[types.ID]string
	terminal  map[types.ID]bool
	err       error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{positions: make(map[types.ID]string), terminal: make(map[types.ID]bool)}
}

func (f *fakeRecorder) RecordRiderLocation(_ context.Context, id types.ID, coords string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.terminal[id] {
		return false, nil
	}
	f.positions[id] = coords
	return true, nil
}
