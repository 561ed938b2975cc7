// README: Customer service maintains trust scores and lifetime counters.
package customer

import (
	"context"
	"fmt"
	"log/slog"

	"fooddash/internal/types"
)

// Repository treats a missing customer as one with default values.
type Repository interface {
	Get(ctx context.Context, id types.ID) (*Customer, error)
	IncrementOrders(ctx context.Context, id types.ID) error
	Penalize(ctx context.Context, id types.ID, points int) (*Customer, error)
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

func (s *Service) TrustScore(ctx context.Context, id types.ID) (int, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading customer %s: %w", id, err)
	}
	return c.TrustScore, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) RecordDelivered(ctx context.Context, id types.ID) error {
	return s.repo.IncrementOrders(ctx, id)
}

// PenalizeLateCancel lowers the trust score (floored at 0) and counts the cancellation.
func (s *Service) PenalizeLateCancel(ctx context.Context, id types.ID) error {
	c, err := s.repo.Penalize(ctx, id, LateCancelPenalty)
	if err != nil {
		return fmt.Errorf("penalizing customer %s: %w", id, err)
	}
	s.log.Info("late cancellation penalty applied", "client_id", id, "trust_score", c.TrustScore, "cancelled_orders", c.CancelledOrders)
	return nil
}
