// README: Customer store backed by PostgreSQL; rows are created lazily on first write.
package customer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fooddash/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Customer, error) {
	c := Customer{ID: id}
	err := s.db.QueryRow(ctx, `
		SELECT trust_score, total_orders, cancelled_orders
		FROM customers
		WHERE id = $1`, string(id),
	).Scan(&c.TrustScore, &c.TotalOrders, &c.CancelledOrders)
	if errors.Is(err, pgx.ErrNoRows) {
		c.TrustScore = DefaultTrustScore
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) IncrementOrders(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO customers (id, trust_score, total_orders)
		VALUES ($1, $2, 1)
		ON CONFLICT (id) DO UPDATE SET total_orders = customers.total_orders + 1`,
		string(id), DefaultTrustScore,
	)
	return err
}

func (s *Store) Penalize(ctx context.Context, id types.ID, points int) (*Customer, error) {
	c := Customer{ID: id}
	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (id, trust_score, cancelled_orders)
		VALUES ($1, GREATEST($2::int - $3::int, 0), 1)
		ON CONFLICT (id) DO UPDATE SET
			trust_score = GREATEST(customers.trust_score - $3::int, 0),
			cancelled_orders = customers.cancelled_orders + 1
		RETURNING trust_score, total_orders, cancelled_orders`,
		string(id), DefaultTrustScore, points,
	).Scan(&c.TrustScore, &c.TotalOrders, &c.CancelledOrders)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
