// README: Driver service: onboarding, admin controls, presence and claim eligibility.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fooddash/internal/types"
)

var (
	ErrNotFound      = errors.New("driver not found")
	ErrExists        = errors.New("driver already exists")
	ErrNotVerified   = errors.New("driver is not verified")
	ErrSuspended     = errors.New("driver is suspended")
	ErrCashBlocked   = errors.New("driver is blocked until cash is settled")
	ErrNotAvailable  = errors.New("driver is not available for new orders")
	ErrOtherMerchant = errors.New("driver belongs to another merchant's fleet")
)

type Repository interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	SetVerified(ctx context.Context, id types.ID, verified bool) error
	Suspend(ctx context.Context, id types.ID) error
	SetPresence(ctx context.Context, id types.ID, online, available bool) error
	Reserve(ctx context.Context, id, orderID types.ID) (bool, error)
	Unreserve(ctx context.Context, id, orderID types.ID) error
	MarkBusy(ctx context.Context, id, orderID types.ID) error
	Release(ctx context.Context, id types.ID) error
	MarkOffline(ctx context.Context, ids []types.ID) (int64, error)
	ListEligible(ctx context.Context) ([]*Driver, error)
	ListOnlineIDs(ctx context.Context) ([]types.ID, error)
	AddNotificationToken(ctx context.Context, id types.ID, token string) error
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log}
}

type OnboardCommand struct {
	ID                   types.ID
	DisplayName          string
	AssignedRestaurantID *types.ID
	MaxCashLimit         types.Money
}

// Onboard creates an unverified, offline driver with no cash exposure.
func (s *Service) Onboard(ctx context.Context, cmd OnboardCommand) (*Driver, error) {
	if cmd.ID == "" {
		return nil, fmt.Errorf("onboarding driver: missing id")
	}
	limit := cmd.MaxCashLimit
	if limit <= 0 {
		limit = DefaultMaxCashLimit
	}
	d := &Driver{
		ID:                   cmd.ID,
		DisplayName:          cmd.DisplayName,
		AssignedRestaurantID: cmd.AssignedRestaurantID,
		MaxCashLimit:         limit,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.log.Info("driver onboarded", "driver_id", d.ID, "exclusive", !d.General())
	return d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Verify(ctx context.Context, id types.ID) error {
	return s.repo.SetVerified(ctx, id, true)
}

// Suspend is the admin kill switch: blocked, offline and unavailable at once.
func (s *Service) Suspend(ctx context.Context, id types.ID) error {
	if err := s.repo.Suspend(ctx, id); err != nil {
		return err
	}
	s.log.Warn("driver suspended", "driver_id", id)
	return nil
}

// GoOnline puts the driver back into the dispatch pool if nothing blocks it.
func (s *Service) GoOnline(ctx context.Context, id types.ID) (*Driver, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case d.IsBlocked:
		return nil, ErrSuspended
	case d.IsBlockedDueToCash:
		return nil, ErrCashBlocked
	case !d.IsVerified:
		return nil, ErrNotVerified
	}
	available := d.CurrentOrderID == nil
	if err := s.repo.SetPresence(ctx, id, true, available); err != nil {
		return nil, err
	}
	d.IsOnline, d.IsAvailable = true, available
	return d, nil
}

func (s *Service) GoOffline(ctx context.Context, id types.ID) error {
	return s.repo.SetPresence(ctx, id, false, false)
}

func (s *Service) ListEligible(ctx context.Context) ([]*Driver, error) {
	return s.repo.ListEligible(ctx)
}

func (s *Service) ListOnlineIDs(ctx context.Context) ([]types.ID, error) {
	return s.repo.ListOnlineIDs(ctx)
}

// MarkBusy records orderID as the driver's current order. It fails with
// ErrNotAvailable when the driver already holds a different order.
func (s *Service) MarkBusy(ctx context.Context, id, orderID types.ID) error {
	return s.repo.MarkBusy(ctx, id, orderID)
}

// Release frees the driver for new orders regardless of the previous state.
func (s *Service) Release(ctx context.Context, id types.ID) error {
	return s.repo.Release(ctx, id)
}

// MarkOffline flips a batch of drivers offline in one write.
func (s *Service) MarkOffline(ctx context.Context, ids []types.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repo.MarkOffline(ctx, ids)
}

func (s *Service) AddNotificationToken(ctx context.Context, id types.ID, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.AddNotificationToken(ctx, id, token)
}

// Reserve holds the driver for orderID ahead of the order claim. The hold is a
// conditional write on the driver row, so a driver racing for two orders gets at
// most one of them.
func (s *Service) Reserve(ctx context.Context, driverID, orderID, merchantID types.ID) error {
	if err := s.CanClaim(ctx, driverID, merchantID); err != nil {
		return err
	}
	ok, err := s.repo.Reserve(ctx, driverID, orderID)
	if err != nil {
		return fmt.Errorf("reserving driver %s: %w", driverID, err)
	}
	if !ok {
		return ErrNotAvailable
	}
	return nil
}

// Unreserve drops a hold whose order claim did not land. Holds for other orders
// are left alone.
func (s *Service) Unreserve(ctx context.Context, driverID, orderID types.ID) error {
	return s.repo.Unreserve(ctx, driverID, orderID)
}

// CanClaim vets a driver right before a claim write.
func (s *Service) CanClaim(ctx context.Context, driverID, merchantID types.ID) error {
	d, err := s.repo.Get(ctx, driverID)
	if err != nil {
		return err
	}
	switch {
	case d.IsBlocked:
		return ErrSuspended
	case d.IsBlockedDueToCash:
		return ErrCashBlocked
	case !d.IsVerified:
		return ErrNotVerified
	case !d.IsOnline || !d.IsAvailable || d.CurrentOrderID != nil:
		return ErrNotAvailable
	case !d.General() && !d.ExclusiveTo(merchantID):
		return ErrOtherMerchant
	}
	return nil
}
