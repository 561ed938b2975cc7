// README: Order store backed by PostgreSQL; every status write is a compare-and-swap.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fooddash/internal/storage"
	"fooddash/internal/types"
)

const orderColumns = `id, order_number, client_id, merchant_id, driver_id, status, status_version,
	items, submitted, totals, payment, timestamps, status_history, cancel_reason, rating,
	server_validated, price_manipulated, warnings, created_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	var (
		items, submitted, totals, payment, timestamps, history, warnings []byte
		err                                                              error
	)
	if items, err = json.Marshal(o.Items); err != nil {
		return err
	}
	if submitted, err = json.Marshal(o.Submitted); err != nil {
		return err
	}
	if totals, err = json.Marshal(o.Totals); err != nil {
		return err
	}
	if payment, err = json.Marshal(o.Payment); err != nil {
		return err
	}
	if timestamps, err = json.Marshal(o.Timestamps); err != nil {
		return err
	}
	if history, err = json.Marshal(o.StatusHistory); err != nil {
		return err
	}
	if warnings, err = json.Marshal(nonNil(o.Warnings)); err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, client_id, merchant_id, driver_id, status, status_version,
			items, submitted, totals, payment, timestamps, status_history, warnings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		string(o.ID), o.Number, string(o.ClientID), string(o.MerchantID), idPtr(o.DriverID),
		string(o.Status), o.StatusVersion,
		string(items), string(submitted), string(totals), string(payment),
		string(timestamps), string(history), string(warnings), o.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) ApplyTransition(ctx context.Context, m Mutation) (bool, error) {
	swap, err := transitionSwap(m)
	if err != nil {
		return false, err
	}
	return storage.CompareAndSwap(ctx, s.db, swap)
}

// Claim is ApplyTransition with the extra precondition that no driver holds the order.
func (s *Store) Claim(ctx context.Context, m Mutation) (bool, error) {
	swap, err := transitionSwap(m)
	if err != nil {
		return false, err
	}
	swap.When = append(swap.When, storage.IsNull("driver_id"))
	return storage.CompareAndSwap(ctx, s.db, swap)
}

func transitionSwap(m Mutation) (storage.Swap, error) {
	entry, err := json.Marshal([]HistoryEntry{m.Entry})
	if err != nil {
		return storage.Swap{}, err
	}
	milestone, err := json.Marshal(map[string]time.Time{m.To.Milestone(): m.At})
	if err != nil {
		return storage.Swap{}, err
	}

	set := map[string]any{
		"status":         string(m.To),
		"status_version": sq.Expr("status_version + 1"),
		"status_history": sq.Expr("status_history || ?::jsonb", string(entry)),
		"timestamps":     sq.Expr("timestamps || ?::jsonb", string(milestone)),
	}
	switch {
	case m.ClearDriver:
		set["driver_id"] = nil
	case m.DriverID != nil:
		set["driver_id"] = string(*m.DriverID)
	}
	if m.CancelReason != nil {
		set["cancel_reason"] = *m.CancelReason
	}
	if m.Payment != nil {
		p, err := json.Marshal(m.Payment)
		if err != nil {
			return storage.Swap{}, err
		}
		set["payment"] = sq.Expr("?::jsonb", string(p))
	}

	return storage.Swap{
		Table: "orders",
		Key:   "id",
		ID:    string(m.OrderID),
		Set:   set,
		When: []storage.Cond{
			storage.Eq("status", string(m.From)),
			storage.Eq("status_version", m.Version),
		},
	}, nil
}

func (s *Store) SaveValidation(ctx context.Context, id types.ID, v *Validation) error {
	items, err := json.Marshal(v.Items)
	if err != nil {
		return err
	}
	totals, err := json.Marshal(v.Totals)
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(nonNil(v.Warnings))
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET items = $1::jsonb,
			totals = $2::jsonb,
			warnings = $3::jsonb,
			price_manipulated = $4,
			server_validated = TRUE
		WHERE id = $5`,
		string(items), string(totals), string(warnings), v.PriceManipulated, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRating only writes while the order is delivered and unrated.
func (s *Store) SaveRating(ctx context.Context, id types.ID, r Rating) (bool, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	return storage.CompareAndSwap(ctx, s.db, storage.Swap{
		Table: "orders",
		Key:   "id",
		ID:    string(id),
		Set:   map[string]any{"rating": sq.Expr("?::jsonb", string(b))},
		When: []storage.Cond{
			storage.Eq("status", string(StatusDelivered)),
			storage.IsNull("rating"),
		},
	})
}

func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error) {
	q := sq.Select(orderColumns).
		From("orders").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("created_at ASC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build order list query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                                                 Order
		driverID, cancelReason                                            *string
		items, submitted, totals, payment, timestamps, history, warnings []byte
		rating                                                            []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.ClientID, &o.MerchantID, &driverID, &o.Status, &o.StatusVersion,
		&items, &submitted, &totals, &payment, &timestamps, &history, &cancelReason, &rating,
		&o.ServerValidated, &o.PriceManipulated, &warnings, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	o.CancelReason = cancelReason

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{items, &o.Items},
		{submitted, &o.Submitted},
		{totals, &o.Totals},
		{payment, &o.Payment},
		{timestamps, &o.Timestamps},
		{history, &o.StatusHistory},
		{warnings, &o.Warnings},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decoding order %s: %w", o.ID, err)
		}
	}
	if len(rating) > 0 {
		var r Rating
		if err := json.Unmarshal(rating, &r); err != nil {
			return nil, fmt.Errorf("decoding order %s rating: %w", o.ID, err)
		}
		o.Rating = &r
	}
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
