// README: Driver heartbeat (position + instant) and reaper tunables.
package location

import (
	"time"

	"fooddash/internal/types"
)

type Heartbeat struct {
	DriverID types.ID
	Position types.Point
	At       time.Time
}

type ReaperConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// Threshold is how long a driver may stay silent before being marked offline.
	Threshold time.Duration
}

func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{Interval: time.Hour, Threshold: 30 * time.Minute}
}

const (
	driverGeoKey      = "presence:drivers:geo"
	driverLastSeenKey = "presence:drivers:last_seen"
	// driverReapedKey holds drivers the reaper took offline and the next heartbeat restores.
	driverReapedKey = "presence:drivers:reaped"
)
