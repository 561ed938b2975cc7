// README: One driver racing for two orders through the real order claim path.
package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fooddash/internal/events"
	"fooddash/internal/modules/order"
	"fooddash/internal/modules/order/ordertest"
	"fooddash/internal/types"
)

func searchingOrder(id types.ID) *order.Order {
	at := time.Date(2026, 10, 14, 11, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:            id,
		Number:        "ORD-20261014-" + string(id),
		ClientID:      "c1",
		MerchantID:    "m1",
		Status:        order.StatusSearchingDriver,
		StatusVersion: 4,
		Payment:       order.Payment{Method: order.PaymentCash, Status: order.PaymentPendingCash},
		Timestamps:    map[string]time.Time{order.StatusSearchingDriver.Milestone(): at},
		StatusHistory: []order.HistoryEntry{{Status: order.StatusSearchingDriver, At: at, Actor: "system"}},
		CreatedAt:     at,
	}
}

func TestDriverCannotHoldTwoOrders(t *testing.T) {
	repo := newMemRepo()
	drivers := NewService(repo, nil)
	ctx := context.Background()
	onboardVerified(t, drivers, "d1", nil)

	orders := ordertest.NewRepo()
	orders.Put(searchingOrder("o1"))
	orders.Put(searchingOrder("o2"))

	bus := events.NewBus(nil)
	bus.Subscribe(order.EventAssigned, events.Critical, func(ctx context.Context, e events.Event) error {
		ev := e.(order.OrderAssigned)
		return drivers.MarkBusy(ctx, ev.DriverID, ev.OrderID)
	})
	svc := order.NewService(orders, order.WithClaimGate(drivers), order.WithPublisher(bus))

	// Both accepts read the driver as free before either one writes.
	var ready sync.WaitGroup
	ready.Add(2)
	repo.onGet = func() {
		ready.Done()
		ready.Wait()
	}

	actor := types.Actor{ID: "d1", Role: types.RoleDriver}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []types.ID{"o1", "o2"} {
		wg.Add(1)
		go func(i int, id types.ID) {
			defer wg.Done()
			_, errs[i] = svc.Accept(ctx, id, actor)
		}(i, id)
	}
	wg.Wait()
	repo.onGet = nil

	var won types.ID
	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			won = []types.ID{"o1", "o2"}[i]
		case errors.Is(err, ErrNotAvailable):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one claim to land, got %d (errs=%v)", wins, errs)
	}

	d, _ := drivers.Get(ctx, "d1")
	if d.CurrentOrderID == nil || *d.CurrentOrderID != won || d.IsAvailable {
		t.Fatalf("driver should hold only %s, got current=%v available=%v", won, d.CurrentOrderID, d.IsAvailable)
	}
	for _, id := range []types.ID{"o1", "o2"} {
		o, _ := orders.Get(ctx, id)
		if id == won {
			if o.Status != order.StatusAssigned || o.DriverID == nil || *o.DriverID != "d1" {
				t.Fatalf("winning order %s not assigned: %+v", id, o)
			}
			continue
		}
		if o.Status != order.StatusSearchingDriver || o.DriverID != nil {
			t.Fatalf("losing order %s should stay searching, got %s", id, o.Status)
		}
	}
}
