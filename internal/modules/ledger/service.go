// README: Cash ledger: delivery settlement and admin debt liquidation, one driver row per transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/order"
	"fooddash/internal/types"
)

var (
	ErrInvalidAmount  = errors.New("amount must be a positive number")
	ErrDriverNotFound = errors.New("driver not found")
)

// Repository runs fn against the locked driver row. Changes fn makes to the driver and
// the returned entry are committed together; an error from fn rolls everything back.
type Repository interface {
	WithDriver(ctx context.Context, id types.ID, fn func(d *driver.Driver) (*Entry, error)) error
	Entries(ctx context.Context, driverID types.ID, limit int) ([]Entry, error)
}

type Service struct {
	repo   Repository
	log    *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

func NewService(repo Repository, log *slog.Logger, now func() time.Time) *Service {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, log: log, now: now, tracer: otel.Tracer("ledger")}
}

// SettleOnDelivery updates delivery stats and, for platform cash orders, the driver's
// debt. Reaching the cash limit takes the driver out of the dispatch pool.
func (s *Service) SettleOnDelivery(ctx context.Context, driverID types.ID, o *order.Order) error {
	ctx, span := s.tracer.Start(ctx, "Service.SettleOnDelivery", trace.WithAttributes(
		attribute.String("driver_id", string(driverID)),
		attribute.String("order_id", string(o.ID)),
	))
	defer span.End()

	now := s.now()
	var blocked bool
	err := s.repo.WithDriver(ctx, driverID, func(d *driver.Driver) (*Entry, error) {
		rollDay(d, now)
		d.TotalDeliveries++
		d.DailyDeliveries++
		d.DailyEarnings += o.Totals.DeliveryFee

		if d.CurrentOrderID != nil && *d.CurrentOrderID == o.ID {
			d.CurrentOrderID = nil
		}
		d.IsAvailable = d.IsOnline && d.CurrentOrderID == nil

		if !o.IsCash() || d.ExclusiveTo(o.MerchantID) {
			return nil, nil
		}
		delta := o.Totals.Total - o.Totals.DeliveryFee
		prev := d.CashInHand
		d.CashInHand += delta
		if d.CashInHand >= d.MaxCashLimit {
			d.IsBlockedDueToCash = true
			d.IsOnline = false
			d.IsAvailable = false
			blocked = true
		}
		orderID := o.ID
		return &Entry{
			ID:           uuid.New(),
			Type:         EntryCashCollected,
			DriverID:     d.ID,
			OrderID:      &orderID,
			Amount:       delta,
			PreviousDebt: prev,
			NewDebt:      d.CashInHand,
			CreatedAt:    now,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("settling order %s for driver %s: %w", o.ID, driverID, err)
	}
	if blocked {
		s.log.Warn("driver reached cash limit; removed from dispatch pool", "driver_id", driverID, "order_id", o.ID)
	}
	return nil
}

// Liquidate records a cash payment from the driver. The balance floors at 0 and the
// cash block lifts once it drops below the limit; the driver stays offline.
func (s *Service) Liquidate(ctx context.Context, driverID types.ID, amount types.Money, adminID types.ID) (*LiquidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Liquidate", trace.WithAttributes(
		attribute.String("driver_id", string(driverID)),
		attribute.Int64("amount", int64(amount)),
	))
	defer span.End()

	var res LiquidationResult
	err := s.repo.WithDriver(ctx, driverID, func(d *driver.Driver) (*Entry, error) {
		if amount <= 0 {
			return nil, ErrInvalidAmount
		}
		res.PreviousDebt = d.CashInHand
		d.CashInHand = max(d.CashInHand-amount, 0)
		res.NewDebt = d.CashInHand
		if d.IsBlockedDueToCash && d.CashInHand < d.MaxCashLimit {
			d.IsBlockedDueToCash = false
			res.Unblocked = true
		}
		admin := adminID
		return &Entry{
			ID:           uuid.New(),
			Type:         EntryLiquidation,
			DriverID:     d.ID,
			Amount:       amount,
			PreviousDebt: res.PreviousDebt,
			NewDebt:      res.NewDebt,
			AdminID:      &admin,
			CreatedAt:    s.now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("driver debt liquidated",
		"driver_id", driverID,
		"admin_id", adminID,
		"amount", amount,
		"previous_debt", res.PreviousDebt,
		"new_debt", res.NewDebt)
	return &res, nil
}

func (s *Service) Entries(ctx context.Context, driverID types.ID, limit int) ([]Entry, error) {
	return s.repo.Entries(ctx, driverID, limit)
}

// rollDay resets daily counters when the last recorded stats day is not today (UTC).
func rollDay(d *driver.Driver, now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if d.StatsDay != nil && d.StatsDay.UTC().Truncate(24*time.Hour).Equal(today) {
		return
	}
	d.DailyDeliveries = 0
	d.DailyEarnings = 0
	d.StatsDay = &today
}
