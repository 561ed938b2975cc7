// README: Customer reputation record (trust score and order counters).
package customer

import "fooddash/internal/types"

const (
	DefaultTrustScore = 100
	LateCancelPenalty = 15
)

type Customer struct {
	ID              types.ID
	TrustScore      int
	TotalOrders     int
	CancelledOrders int
}
