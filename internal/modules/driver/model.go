// README: Driver record: verification, presence, exclusivity and cash exposure.
package driver

import (
	"time"

	"fooddash/internal/types"
)

// DefaultMaxCashLimit is the credit ceiling given to new drivers.
const DefaultMaxCashLimit types.Money = 1000

type Driver struct {
	ID                   types.ID
	DisplayName          string
	IsVerified           bool
	IsBlocked            bool
	IsOnline             bool
	IsAvailable          bool
	AssignedRestaurantID *types.ID
	CashInHand           types.Money
	MaxCashLimit         types.Money
	IsBlockedDueToCash   bool
	CurrentOrderID       *types.ID
	NotificationTokens   []string
	TotalDeliveries      int
	DailyDeliveries      int
	DailyEarnings        types.Money
	StatsDay             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Eligible reports whether the driver may receive dispatches right now.
func (d *Driver) Eligible() bool {
	return d.IsOnline && d.IsAvailable && d.IsVerified && !d.IsBlocked && !d.IsBlockedDueToCash
}

// ExclusiveTo reports whether d belongs to merchantID's exclusive fleet.
func (d *Driver) ExclusiveTo(merchantID types.ID) bool {
	return d.AssignedRestaurantID != nil && *d.AssignedRestaurantID == merchantID
}

// General reports whether d belongs to no exclusive fleet.
func (d *Driver) General() bool {
	return d.AssignedRestaurantID == nil || *d.AssignedRestaurantID == ""
}
