// README: Domain events published by the order service.
package order

import (
	"fooddash/internal/types"
)

const (
	EventValidated        = "order.validated"
	EventStatusChanged    = "order.status_changed"
	EventReadyForDispatch = "order.ready_for_dispatch"
	EventAssigned         = "order.assigned"
	EventDelivered        = "order.delivered"
	EventCancelled        = "order.cancelled"
)

// OrderValidated fires once integrity checks passed and the merchant may see the order.
type OrderValidated struct {
	Order *Order `json:"order"`
}

func (OrderValidated) Name() string { return EventValidated }

type StatusChanged struct {
	OrderID types.ID    `json:"order_id"`
	From    Status      `json:"from"`
	To      Status      `json:"to"`
	Actor   types.Actor `json:"actor"`
}

func (StatusChanged) Name() string { return EventStatusChanged }

type OrderReadyForDispatch struct {
	Order *Order `json:"order"`
}

func (OrderReadyForDispatch) Name() string { return EventReadyForDispatch }

type OrderAssigned struct {
	OrderID  types.ID `json:"order_id"`
	DriverID types.ID `json:"driver_id"`
}

func (OrderAssigned) Name() string { return EventAssigned }

type OrderDelivered struct {
	Order    *Order   `json:"order"`
	DriverID types.ID `json:"driver_id,omitempty"`
}

func (OrderDelivered) Name() string { return EventDelivered }

// OrderCancelled carries the status the order was cancelled from and the driver, if
// one held it at that moment.
type OrderCancelled struct {
	Order    *Order      `json:"order"`
	From     Status      `json:"from"`
	Actor    types.Actor `json:"actor"`
	DriverID *types.ID   `json:"driver_id,omitempty"`
}

func (OrderCancelled) Name() string { return EventCancelled }

// Late reports a cancellation after the merchant started cooking.
func (e OrderCancelled) Late() bool {
	return e.From == StatusPreparing || e.From == StatusSearchingDriver
}
