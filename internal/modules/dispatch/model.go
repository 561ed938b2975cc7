// README: Dispatch bookkeeping types and tunables.
package dispatch

import (
	"time"

	"fooddash/internal/types"
)

// Record tracks how often an order was broadcast and to whom.
type Record struct {
	OrderID         types.ID
	FirstDispatchAt time.Time
	LastDispatchAt  time.Time
	Broadcasts      int
	NotifiedDrivers []types.ID
}

type Config struct {
	// SweepInterval is how often stuck searching orders are inspected.
	SweepInterval time.Duration
	// RebroadcastAfter is the minimum gap between two broadcasts of one order.
	RebroadcastAfter time.Duration
	// MaxBroadcasts caps automatic broadcasts per order; after that the order waits
	// for manual intervention.
	MaxBroadcasts int
	// SweepBatch bounds how many searching orders one sweep looks at.
	SweepBatch int
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:    time.Minute,
		RebroadcastAfter: 5 * time.Minute,
		MaxBroadcasts:    3,
		SweepBatch:       100,
	}
}

const (
	dispatchKeyPrefix = "dispatch:order:%s"
	notifiedKeyPrefix = "dispatch:order:%s:notified"
	// TTL for dispatch keys (orders should resolve well within 7 days).
	keyTTL = 7 * 24 * time.Hour
)
