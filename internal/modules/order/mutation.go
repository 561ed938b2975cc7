// README: Transition write descriptor shared by the service and its stores.
package order

import (
	"time"

	"fooddash/internal/types"
)

// Mutation is one status change. The stored row must still be at From/Version for the
// write to apply; the history entry and milestone are written in the same update.
type Mutation struct {
	OrderID      types.ID
	From         Status
	Version      int
	To           Status
	At           time.Time
	Entry        HistoryEntry
	DriverID     *types.ID
	ClearDriver  bool
	CancelReason *string
	Payment      *Payment
}

// ApplyMutation applies m to an in-memory order the way the store applies it to a row.
func ApplyMutation(o *Order, m Mutation) {
	m.apply(o)
}

func (m Mutation) apply(o *Order) {
	o.Status = m.To
	o.StatusVersion = m.Version + 1
	o.StatusHistory = append(o.StatusHistory, m.Entry)
	if o.Timestamps == nil {
		o.Timestamps = map[string]time.Time{}
	}
	o.Timestamps[m.To.Milestone()] = m.At
	if m.DriverID != nil {
		id := *m.DriverID
		o.DriverID = &id
	}
	if m.ClearDriver {
		o.DriverID = nil
	}
	if m.CancelReason != nil {
		r := *m.CancelReason
		o.CancelReason = &r
	}
	if m.Payment != nil {
		o.Payment = *m.Payment
	}
}
