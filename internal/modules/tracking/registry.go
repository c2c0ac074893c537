// README: In-process registry of live channels, one slot per (order, role).
package tracking

import (
	"sync"
	"time"

	"parcel/internal/types"
)

// Conn is a live channel as seen by the registry. Send must not block.
type Conn interface {
	Send(msg []byte) bool
	Close(code int, reason string)
	LastSeen() time.Time
}

type group map[types.Role]Conn

// Registry holds the live channels of this process only; it is rebuilt from
// scratch on restart and knows nothing of other instances.
type Registry struct {
	mu     sync.Mutex
	groups map[types.ID]group
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[types.ID]group)}
}

// Attach puts c into the (orderID, role) slot and returns the channel it
// replaced, if any. Closing the replaced channel is up to the caller.
func (r *Registry) Attach(orderID types.ID, role types.Role, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[orderID]
	if !ok {
		g = make(group, len(types.Roles))
		r.groups[orderID] = g
	}
	prev := g[role]
	g[role] = c
	return prev
}

// Detach clears the slot only if it still holds c, so a replaced channel
// closing late cannot evict its successor. It reports whether the slot was
// cleared.
func (r *Registry) Detach(orderID types.ID, role types.Role, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[orderID]
	if !ok || g[role] != c {
		return false
	}
	delete(g, role)
	if len(g) == 0 {
		delete(r.groups, orderID)
	}
	return true
}

// Broadcast sends msg to every occupied slot of orderID and returns how many
// channels accepted it. Sends happen outside the lock.
func (r *Registry) Broadcast(orderID types.ID, msg []byte) int {
	delivered := 0
	for _, c := range r.Recipients(orderID) {
		if c.Send(msg) {
			delivered++
		}
	}
	return delivered
}

// Recipients returns a snapshot of the channels currently attached to orderID.
func (r *Registry) Recipients(orderID types.ID) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groups[orderID]
	out := make([]Conn, 0, len(g))
	for _, role := range types.Roles {
		if c, ok := g[role]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Slot identifies one occupied slot in a snapshot.
type Slot struct {
	OrderID types.ID
	Role    types.Role
	Conn    Conn
}

// Snapshot lists every occupied slot.
func (r *Registry) Snapshot() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for id, g := range r.groups {
		for role, c := range g {
			out = append(out, Slot{OrderID: id, Role: role, Conn: c})
		}
	}
	return out
}

// Stats returns the number of order groups and attached channels.
func (r *Registry) Stats() (orders, conns int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		conns += len(g)
	}
	return len(r.groups), conns
}
