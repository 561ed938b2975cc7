package dispatch

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/order"
	"fooddash/internal/notify"
	"fooddash/internal/types"
)

type staticDrivers []*driver.Driver

func (s staticDrivers) ListEligible(context.Context) ([]*driver.Driver, error) {
	var out []*driver.Driver
	for _, d := range s {
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out, nil
}

type staticOrders []*order.Order

func (s staticOrders) Searching(context.Context, int) ([]*order.Order, error) { return s, nil }

type memRecords struct {
	mu   sync.Mutex
	recs map[types.ID]Record
}

func newMemRecords() *memRecords { return &memRecords{recs: map[types.ID]Record{}} }

func (m *memRecords) RecordDispatch(_ context.Context, id types.ID, drivers []types.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		r = Record{OrderID: id, FirstDispatchAt: at}
	}
	r.LastDispatchAt = at
	r.Broadcasts++
	r.NotifiedDrivers = append(r.NotifiedDrivers, drivers...)
	m.recs[id] = r
	return nil
}

func (m *memRecords) GetDispatch(_ context.Context, id types.ID) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok, nil
}

func (m *memRecords) Forget(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

type captureNotifier struct {
	calls [][]string
	err   error
}

func (c *captureNotifier) Notify(_ context.Context, tokens []string, _ notify.Payload) (notify.Result, error) {
	c.calls = append(c.calls, tokens)
	if c.err != nil {
		return notify.Result{}, c.err
	}
	return notify.Result{SuccessCount: len(tokens)}, nil
}

func ptr(id types.ID) *types.ID { return &id }

func eligible(id types.ID, restaurant *types.ID, tokens ...string) *driver.Driver {
	return &driver.Driver{
		ID: id, IsVerified: true, IsOnline: true, IsAvailable: true,
		AssignedRestaurantID: restaurant, NotificationTokens: tokens,
	}
}

func ids(ds []*driver.Driver) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, string(d.ID))
	}
	sort.Strings(out)
	return out
}

func TestSelectTargetsExclusivityFirst(t *testing.T) {
	pool := []*driver.Driver{
		eligible("fleetA", ptr("A")),
		eligible("g1", nil),
		eligible("g2", nil),
		eligible("g3", nil),
		eligible("fleetB", ptr("B")),
	}

	if got := ids(SelectTargets("A", pool)); len(got) != 1 || got[0] != "fleetA" {
		t.Fatalf("merchant A should only reach its fleet, got %v", got)
	}
	if got := ids(SelectTargets("C", pool)); len(got) != 3 || got[0] != "g1" {
		t.Fatalf("merchant C should fall through to general fleet only, got %v", got)
	}
}

func TestSelectTargetsSkipsIneligible(t *testing.T) {
	offline := eligible("fleetA", ptr("A"))
	offline.IsOnline = false
	cash := eligible("g1", nil)
	cash.IsBlockedDueToCash = true
	unverified := eligible("g2", nil)
	unverified.IsVerified = false
	pool := []*driver.Driver{offline, cash, unverified, eligible("g3", nil)}

	if got := ids(SelectTargets("A", pool)); len(got) != 1 || got[0] != "g3" {
		t.Fatalf("expected fallback to the only eligible general driver, got %v", got)
	}
}

func newTestService(drivers DriverSource, orders OrderSource, n notify.Notifier) (*Service, *memRecords) {
	recs := newMemRecords()
	svc := NewService(drivers, orders, recs, n, DefaultConfig(), nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }
	return svc, recs
}

func TestBroadcastOnlyReachesExclusiveTokens(t *testing.T) {
	n := &captureNotifier{}
	drivers := staticDrivers{
		eligible("fleetA", ptr("A"), "tA", "tA"),
		eligible("g1", nil, "t1"),
		eligible("g2", nil, "t2"),
		eligible("g3", nil, "t3"),
	}
	svc, recs := newTestService(drivers, nil, n)

	o := &order.Order{ID: "o1", Number: "ORD-20261014-AAAAAA", MerchantID: "A", Totals: order.Totals{DeliveryFee: 25}}
	if err := svc.Broadcast(context.Background(), o); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(n.calls) != 1 || len(n.calls[0]) != 1 || n.calls[0][0] != "tA" {
		t.Fatalf("expected one multicast to tA, got %v", n.calls)
	}
	rec, ok, _ := recs.GetDispatch(context.Background(), "o1")
	if !ok || rec.Broadcasts != 1 || len(rec.NotifiedDrivers) != 1 {
		t.Fatalf("unexpected dispatch record %+v", rec)
	}
}

func TestBroadcastWithoutTokensDoesNotFail(t *testing.T) {
	n := &captureNotifier{}
	svc, recs := newTestService(staticDrivers{eligible("g1", nil)}, nil, n)

	if err := svc.Broadcast(context.Background(), &order.Order{ID: "o1", MerchantID: "A"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(n.calls) != 0 {
		t.Fatalf("no notification expected, got %v", n.calls)
	}
	if _, ok, _ := recs.GetDispatch(context.Background(), "o1"); !ok {
		t.Fatal("attempt should still be recorded for the sweep")
	}
}

func TestBroadcastToleratesNotifierFailure(t *testing.T) {
	n := &captureNotifier{err: errors.New("fcm down")}
	svc, _ := newTestService(staticDrivers{eligible("g1", nil, "t1")}, nil, n)
	if err := svc.Broadcast(context.Background(), &order.Order{ID: "o1", MerchantID: "A"}); err != nil {
		t.Fatalf("notification failures must not fail the broadcast, got %v", err)
	}
}

func TestSweepOnce(t *testing.T) {
	n := &captureNotifier{}
	orders := staticOrders{
		{ID: "never", MerchantID: "A"},
		{ID: "recent", MerchantID: "A"},
		{ID: "stale", MerchantID: "A"},
		{ID: "exhausted", MerchantID: "A"},
	}
	svc, recs := newTestService(staticDrivers{eligible("g1", nil, "t1")}, orders, n)
	now := svc.now()
	recs.recs["recent"] = Record{OrderID: "recent", LastDispatchAt: now.Add(-time.Minute), Broadcasts: 1}
	recs.recs["stale"] = Record{OrderID: "stale", LastDispatchAt: now.Add(-10 * time.Minute), Broadcasts: 1}
	recs.recs["exhausted"] = Record{OrderID: "exhausted", LastDispatchAt: now.Add(-time.Hour), Broadcasts: 3}

	sent, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected never+stale to be re-broadcast, got %d", sent)
	}
	if r := recs.recs["stale"]; r.Broadcasts != 2 {
		t.Fatalf("stale order broadcasts = %d, want 2", r.Broadcasts)
	}
	if r := recs.recs["exhausted"]; r.Broadcasts != 3 {
		t.Fatalf("exhausted order should be left alone, got %d", r.Broadcasts)
	}
}

func TestRedisStoreRecordDispatch(t *testing.T) {
	addr := os.Getenv("FOODDASH_TEST_REDIS")
	if addr == "" {
		t.Skip("FOODDASH_TEST_REDIS not set; skipping Redis-backed tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	store := NewStore(rdb)
	_ = store.Forget(ctx, "redis-o1")

	first := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	if err := store.RecordDispatch(ctx, "redis-o1", []types.ID{"d1", "d2"}, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordDispatch(ctx, "redis-o1", []types.ID{"d2", "d3"}, first.Add(5*time.Minute)); err != nil {
		t.Fatalf("record again: %v", err)
	}

	rec, ok, err := store.GetDispatch(ctx, "redis-o1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.Broadcasts != 2 || !rec.FirstDispatchAt.Equal(first) || !rec.LastDispatchAt.Equal(first.Add(5*time.Minute)) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.NotifiedDrivers) != 3 {
		t.Fatalf("expected 3 distinct notified drivers, got %v", rec.NotifiedDrivers)
	}

	if err := store.Forget(ctx, "redis-o1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok, _ := store.GetDispatch(ctx, "redis-o1"); ok {
		t.Fatal("record should be gone")
	}
}
