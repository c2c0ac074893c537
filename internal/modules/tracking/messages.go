// README: Wire messages exchanged over a live tracking channel.
package tracking

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeLocationUpdate MessageType = "location_update"
	TypeStatusUpdate   MessageType = "status_update"
)

// Outbound is pushed to every occupied slot of an order. Timestamps marshal as
// RFC 3339 (ISO-8601).
type Outbound struct {
	Type      MessageType `json:"type"`
	Location  string      `json:"location,omitempty"`
	Status    string      `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Inbound is the only message a rider channel sends.
type Inbound struct {
	Coords string `json:"coords"`
}

func encode(m Outbound) ([]byte, error) {
	return json.Marshal(m)
}
