// README: Dispatch broadcaster: exclusivity-first driver selection, multicast fan-out and the stale sweep.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/order"
	"fooddash/internal/notify"
	"fooddash/internal/types"
)

type DriverSource interface {
	ListEligible(ctx context.Context) ([]*driver.Driver, error)
}

type OrderSource interface {
	Searching(ctx context.Context, limit int) ([]*order.Order, error)
}

type RecordStore interface {
	RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID, at time.Time) error
	GetDispatch(ctx context.Context, orderID types.ID) (Record, bool, error)
	Forget(ctx context.Context, orderID types.ID) error
}

type Service struct {
	drivers  DriverSource
	orders   OrderSource
	records  RecordStore
	notifier notify.Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

func NewService(drivers DriverSource, orders OrderSource, records RecordStore, notifier notify.Notifier, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		drivers:  drivers,
		orders:   orders,
		records:  records,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		tracer:   otel.Tracer("dispatch"),
	}
}

// SelectTargets applies the exclusivity-first policy. When any eligible driver belongs
// to merchantID's fleet, only those drivers are returned. Otherwise the general fleet
// is used; drivers of other merchants' fleets never qualify.
func SelectTargets(merchantID types.ID, candidates []*driver.Driver) []*driver.Driver {
	var exclusive, general []*driver.Driver
	for _, d := range candidates {
		if !d.Eligible() {
			continue
		}
		switch {
		case d.ExclusiveTo(merchantID):
			exclusive = append(exclusive, d)
		case d.General():
			general = append(general, d)
		}
	}
	if len(exclusive) > 0 {
		return exclusive
	}
	return general
}

// Broadcast notifies the selected drivers about o. Missing targets and partial send
// failures are logged; only the driver lookup itself can fail the call.
func (s *Service) Broadcast(ctx context.Context, o *order.Order) error {
	ctx, span := s.tracer.Start(ctx, "Service.Broadcast", trace.WithAttributes(
		attribute.String("order_id", string(o.ID)),
	))
	defer span.End()

	candidates, err := s.drivers.ListEligible(ctx)
	if err != nil {
		return fmt.Errorf("listing eligible drivers: %w", err)
	}
	targets := SelectTargets(o.MerchantID, candidates)

	ids := make([]types.ID, 0, len(targets))
	var tokens []string
	for _, d := range targets {
		ids = append(ids, d.ID)
		tokens = append(tokens, d.NotificationTokens...)
	}
	tokens = notify.Dedupe(tokens)
	span.SetAttributes(attribute.Int("targets", len(targets)), attribute.Int("tokens", len(tokens)))

	if err := s.records.RecordDispatch(ctx, o.ID, ids, s.now()); err != nil {
		s.log.Warn("recording dispatch failed", "order_id", o.ID, "error", err)
	}

	if len(tokens) == 0 {
		s.log.Warn("no drivers to notify; order stays searching", "order_id", o.ID, "merchant_id", o.MerchantID, "targets", len(targets))
		return nil
	}

	res, err := s.notifier.Notify(ctx, tokens, payloadFor(o))
	if err != nil {
		s.log.Error("dispatch notification failed", "order_id", o.ID, "error", err)
		return nil
	}
	s.log.Info("order broadcast",
		"order_id", o.ID,
		"drivers", len(targets),
		"success", res.SuccessCount,
		"failure", res.FailureCount)
	return nil
}

func payloadFor(o *order.Order) notify.Payload {
	return notify.Payload{
		Title: "New delivery request",
		Body:  fmt.Sprintf("Earn %d delivering order %s", o.Totals.DeliveryFee, o.Number),
		Data: map[string]string{
			"type":         "new_order",
			"order_id":     string(o.ID),
			"order_number": o.Number,
			"merchant_id":  string(o.MerchantID),
			"delivery_fee": strconv.FormatInt(int64(o.Totals.DeliveryFee), 10),
		},
	}
}

// Forget clears bookkeeping for an order that left the search state.
func (s *Service) Forget(ctx context.Context, orderID types.ID) error {
	return s.records.Forget(ctx, orderID)
}

// RunStaleSweep re-broadcasts searching orders until ctx is done.
func (s *Service) RunStaleSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("stale dispatch sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce re-broadcasts every searching order whose last broadcast is older than
// RebroadcastAfter, up to MaxBroadcasts. It returns how many orders were re-broadcast.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SweepOnce")
	defer span.End()

	orders, err := s.orders.Searching(ctx, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("listing searching orders: %w", err)
	}
	now := s.now()
	sent := 0
	for _, o := range orders {
		rec, ok, err := s.records.GetDispatch(ctx, o.ID)
		if err != nil {
			s.log.Warn("reading dispatch record failed", "order_id", o.ID, "error", err)
			continue
		}
		if ok {
			if now.Sub(rec.LastDispatchAt) < s.cfg.RebroadcastAfter {
				continue
			}
			if rec.Broadcasts >= s.cfg.MaxBroadcasts {
				s.log.Warn("order still unclaimed after max broadcasts; needs manual intervention",
					"order_id", o.ID,
					"broadcasts", rec.Broadcasts,
					"searching_since", rec.FirstDispatchAt)
				continue
			}
		}
		if err := s.Broadcast(ctx, o); err != nil {
			s.log.Warn("re-broadcast failed", "order_id", o.ID, "error", err)
			continue
		}
		sent++
	}
	span.SetAttributes(attribute.Int("rebroadcast", sent))
	return sent, nil
}
