// README: Order event subscriptions: dispatch, driver occupancy, cash settlement, reputation and push.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"fooddash/internal/events"
	"fooddash/internal/modules/order"
	"fooddash/internal/modules/pricing"
	"fooddash/internal/notify"
	"fooddash/internal/types"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, o *order.Order) error
	Forget(ctx context.Context, orderID types.ID) error
}

type Occupancy interface {
	MarkBusy(ctx context.Context, id, orderID types.ID) error
	Release(ctx context.Context, id types.ID) error
}

type Settler interface {
	SettleOnDelivery(ctx context.Context, driverID types.ID, o *order.Order) error
}

type Reputation interface {
	RecordDelivered(ctx context.Context, id types.ID) error
	PenalizeLateCancel(ctx context.Context, id types.ID) error
}

type MerchantDirectory interface {
	Merchant(ctx context.Context, id types.ID) (*pricing.Merchant, error)
}

type Subscribers struct {
	Dispatch  Broadcaster
	Drivers   Occupancy
	Ledger    Settler
	Customers Reputation
	Merchants MerchantDirectory
	Notifier  notify.Notifier
	Mirror    events.Handler
	Log       *slog.Logger
}

// Register wires handlers onto bus. Ledger settlement and driver occupancy are
// Critical: their failure is reported to the caller of the transition.
func Register(bus *events.Bus, s Subscribers) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	bus.Subscribe(order.EventValidated, events.BestEffort, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderValidated)
		return notifyMerchant(ctx, s.Merchants, s.Notifier, ev.Order)
	})

	bus.Subscribe(order.EventReadyForDispatch, events.BestEffort, func(ctx context.Context, e events.Event) error {
		return s.Dispatch.Broadcast(ctx, e.(order.OrderReadyForDispatch).Order)
	})

	bus.Subscribe(order.EventAssigned, events.Critical, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderAssigned)
		return s.Drivers.MarkBusy(ctx, ev.DriverID, ev.OrderID)
	})
	bus.Subscribe(order.EventAssigned, events.BestEffort, func(ctx context.Context, e events.Event) error {
		return s.Dispatch.Forget(ctx, e.(order.OrderAssigned).OrderID)
	})

	bus.Subscribe(order.EventDelivered, events.Critical, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderDelivered)
		if ev.DriverID == "" {
			log.Warn("delivered order without driver; nothing to settle", "order_id", ev.Order.ID)
			return nil
		}
		return s.Ledger.SettleOnDelivery(ctx, ev.DriverID, ev.Order)
	})
	bus.Subscribe(order.EventDelivered, events.BestEffort, func(ctx context.Context, e events.Event) error {
		return s.Customers.RecordDelivered(ctx, e.(order.OrderDelivered).Order.ClientID)
	})

	bus.Subscribe(order.EventCancelled, events.Critical, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderCancelled)
		if ev.DriverID == nil {
			return nil
		}
		return s.Drivers.Release(ctx, *ev.DriverID)
	})
	bus.Subscribe(order.EventCancelled, events.BestEffort, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderCancelled)
		if !ev.Late() || ev.Actor.Role != types.RoleClient {
			return nil
		}
		return s.Customers.PenalizeLateCancel(ctx, ev.Order.ClientID)
	})
	bus.Subscribe(order.EventCancelled, events.BestEffort, func(ctx context.Context, e events.Event) error {
		return s.Dispatch.Forget(ctx, e.(order.OrderCancelled).Order.ID)
	})

	if s.Mirror != nil {
		bus.Subscribe(events.Any, events.BestEffort, s.Mirror)
	}
}

func notifyMerchant(ctx context.Context, dir MerchantDirectory, n notify.Notifier, o *order.Order) error {
	m, err := dir.Merchant(ctx, o.MerchantID)
	if err != nil {
		return fmt.Errorf("loading merchant %s: %w", o.MerchantID, err)
	}
	tokens := notify.Dedupe(m.NotificationTokens)
	if len(tokens) == 0 {
		return nil
	}
	_, err = n.Notify(ctx, tokens, notify.Payload{
		Title: "New order",
		Body:  fmt.Sprintf("Order %s: %d", o.Number, o.Totals.Total),
		Data:  map[string]string{"type": "new_order", "order_id": string(o.ID)},
	})
	return err
}
