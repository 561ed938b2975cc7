// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fooddash/internal/storage"
	"fooddash/internal/types"
)

// Columns is the select list understood by Scan.
const Columns = `id, display_name, is_verified, is_blocked, is_online, is_available,
	assigned_restaurant_id, cash_in_hand, max_cash_limit, is_blocked_due_to_cash,
	current_order_id, notification_tokens, total_deliveries, daily_deliveries,
	daily_earnings, stats_day, created_at, updated_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (*Driver, error) {
	var (
		d                     Driver
		restaurant, currentID *string
	)
	err := row.Scan(
		&d.ID, &d.DisplayName, &d.IsVerified, &d.IsBlocked, &d.IsOnline, &d.IsAvailable,
		&restaurant, &d.CashInHand, &d.MaxCashLimit, &d.IsBlockedDueToCash,
		&currentID, &d.NotificationTokens, &d.TotalDeliveries, &d.DailyDeliveries,
		&d.DailyEarnings, &d.StatsDay, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if restaurant != nil {
		r := types.ID(*restaurant)
		d.AssignedRestaurantID = &r
	}
	if currentID != nil {
		c := types.ID(*currentID)
		d.CurrentOrderID = &c
	}
	return &d, nil
}

func (s *Store) Create(ctx context.Context, d *Driver) error {
	var restaurant *string
	if d.AssignedRestaurantID != nil {
		r := string(*d.AssignedRestaurantID)
		restaurant = &r
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO drivers (id, display_name, assigned_restaurant_id, max_cash_limit)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		string(d.ID), d.DisplayName, restaurant, int64(d.MaxCashLimit),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	d, err := Scan(s.db.QueryRow(ctx, `SELECT `+Columns+` FROM drivers WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *Store) SetVerified(ctx context.Context, id types.ID, verified bool) error {
	return s.update(ctx, id, map[string]any{"is_verified": verified})
}

func (s *Store) Suspend(ctx context.Context, id types.ID) error {
	return s.update(ctx, id, map[string]any{
		"is_blocked":   true,
		"is_online":    false,
		"is_available": false,
	})
}

func (s *Store) SetPresence(ctx context.Context, id types.ID, online, available bool) error {
	return s.update(ctx, id, map[string]any{
		"is_online":    online,
		"is_available": available,
	})
}

// Reserve takes the driver for orderID only while they are eligible and hold no order.
func (s *Store) Reserve(ctx context.Context, id, orderID types.ID) (bool, error) {
	return storage.CompareAndSwap(ctx, s.db, storage.Swap{
		Table: "drivers",
		Key:   "id",
		ID:    string(id),
		Set: map[string]any{
			"is_available":     false,
			"current_order_id": string(orderID),
			"updated_at":       sq.Expr("NOW()"),
		},
		When: []storage.Cond{
			storage.IsNull("current_order_id"),
			storage.Eq("is_online", true),
			storage.Eq("is_available", true),
			storage.Eq("is_verified", true),
			storage.Eq("is_blocked", false),
			storage.Eq("is_blocked_due_to_cash", false),
		},
	})
}

func (s *Store) Unreserve(ctx context.Context, id, orderID types.ID) error {
	_, err := storage.CompareAndSwap(ctx, s.db, storage.Swap{
		Table: "drivers",
		Key:   "id",
		ID:    string(id),
		Set: map[string]any{
			"is_available":     sq.Expr("is_online"),
			"current_order_id": nil,
			"updated_at":       sq.Expr("NOW()"),
		},
		When: []storage.Cond{storage.Eq("current_order_id", string(orderID))},
	})
	return err
}

// MarkBusy is a no-op when the driver already holds orderID.
func (s *Store) MarkBusy(ctx context.Context, id, orderID types.ID) error {
	query, args, err := sq.Update("drivers").
		Set("is_available", false).
		Set("current_order_id", string(orderID)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": string(id)}).
		Where(sq.Or{
			sq.Eq{"current_order_id": nil},
			sq.Eq{"current_order_id": string(orderID)},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build driver busy update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotAvailable
	}
	return nil
}

func (s *Store) Release(ctx context.Context, id types.ID) error {
	return s.update(ctx, id, map[string]any{
		"is_available":     true,
		"current_order_id": nil,
	})
}

func (s *Store) AddNotificationToken(ctx context.Context, id types.ID, token string) error {
	return s.update(ctx, id, map[string]any{
		"notification_tokens": sq.Expr(
			"CASE WHEN ? = ANY(notification_tokens) THEN notification_tokens ELSE array_append(notification_tokens, ?) END",
			token, token,
		),
	})
}

func (s *Store) update(ctx context.Context, id types.ID, set map[string]any) error {
	set["updated_at"] = sq.Expr("NOW()")
	query, args, err := sq.Update("drivers").
		SetMap(set).
		Where(sq.Eq{"id": string(id)}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build driver update: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkOffline(ctx context.Context, ids []types.ID) (int64, error) {
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	query, args, err := sq.Update("drivers").
		Set("is_online", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": raw, "is_online": true}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build offline batch: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListEligible(ctx context.Context) ([]*Driver, error) {
	query, args, err := sq.Select(Columns).
		From("drivers").
		Where(sq.Eq{
			"is_online":              true,
			"is_available":           true,
			"is_verified":            true,
			"is_blocked":             false,
			"is_blocked_due_to_cash": false,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build eligible drivers query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Driver
	for rows.Next() {
		d, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListOnlineIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM drivers WHERE is_online`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}
