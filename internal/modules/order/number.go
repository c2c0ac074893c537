package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// newOrderNumber builds the display code shown to customers and riders, e.g.
// ORD-261017094512-0427. Uniqueness is enforced by the orders table.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("060102150405"), rand.IntN(10000))
}
