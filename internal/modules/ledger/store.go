// README: Ledger store: locks the driver row (SELECT ... FOR UPDATE) for each debt change.
package ledger

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fooddash/internal/modules/driver"
	"fooddash/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) WithDriver(ctx context.Context, id types.ID, fn func(d *driver.Driver) (*Entry, error)) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		d, err := driver.Scan(tx.QueryRow(ctx,
			`SELECT `+driver.Columns+` FROM drivers WHERE id = $1 FOR UPDATE`, string(id)))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDriverNotFound
		}
		if err != nil {
			return fmt.Errorf("locking driver %s: %w", id, err)
		}

		entry, err := fn(d)
		if err != nil {
			return err
		}
		if err := writeDriver(ctx, tx, d); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return insertEntry(ctx, tx, entry)
	})
}

func writeDriver(ctx context.Context, tx pgx.Tx, d *driver.Driver) error {
	var current *string
	if d.CurrentOrderID != nil {
		c := string(*d.CurrentOrderID)
		current = &c
	}
	query, args, err := sq.Update("drivers").
		SetMap(map[string]any{
			"cash_in_hand":           int64(d.CashInHand),
			"is_blocked_due_to_cash": d.IsBlockedDueToCash,
			"is_online":              d.IsOnline,
			"is_available":           d.IsAvailable,
			"current_order_id":       current,
			"total_deliveries":       d.TotalDeliveries,
			"daily_deliveries":       d.DailyDeliveries,
			"daily_earnings":         int64(d.DailyEarnings),
			"stats_day":              d.StatsDay,
			"updated_at":             sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"id": string(d.ID)}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build driver ledger update: %w", err)
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO cash_ledger_entries (id, type, driver_id, order_id, amount, previous_debt, new_debt, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.Type), string(e.DriverID), idPtr(e.OrderID),
		int64(e.Amount), int64(e.PreviousDebt), int64(e.NewDebt), idPtr(e.AdminID), e.CreatedAt,
	)
	return err
}

func (s *Store) Entries(ctx context.Context, driverID types.ID, limit int) ([]Entry, error) {
	q := sq.Select("id", "type", "driver_id", "order_id", "amount", "previous_debt", "new_debt", "admin_id", "created_at").
		From("cash_ledger_entries").
		Where(sq.Eq{"driver_id": string(driverID)}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			orderID, adminID *string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.DriverID, &orderID, &e.Amount, &e.PreviousDebt, &e.NewDebt, &adminID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if orderID != nil {
			o := types.ID(*orderID)
			e.OrderID = &o
		}
		if adminID != nil {
			a := types.ID(*adminID)
			e.AdminID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
