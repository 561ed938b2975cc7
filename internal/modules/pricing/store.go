// README: Merchant and menu catalog backed by PostgreSQL.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
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

func (s *Store) Merchant(ctx context.Context, id types.ID) (*Merchant, error) {
	var (
		m   Merchant
		fee *int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, is_open, commission_rate::float8, default_delivery_fee, notification_tokens
		FROM merchants
		WHERE id = $1`, string(id),
	).Scan(&m.ID, &m.Name, &m.IsOpen, &m.CommissionRate, &fee, &m.NotificationTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMerchantNotFound
	}
	if err != nil {
		return nil, err
	}
	if fee != nil {
		f := types.Money(*fee)
		m.DefaultDeliveryFee = &f
	}
	return &m, nil
}

// MenuItems returns the merchant's items among ids, keyed by id. Unknown ids are absent.
func (s *Store) MenuItems(ctx context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]MenuItem, error) {
	out := make(map[types.ID]MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}

	query, args, err := sq.Select("id", "merchant_id", "name", "price", "is_available", "modifier_groups", "legacy_extras").
		From("menu_items").
		Where(sq.Eq{"merchant_id": string(merchantID), "id": raw}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build menu query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mi             MenuItem
			groups, extras []byte
		)
		if err := rows.Scan(&mi.ID, &mi.MerchantID, &mi.Name, &mi.Price, &mi.IsAvailable, &groups, &extras); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(groups, &mi.ModifierGroups); err != nil {
			return nil, fmt.Errorf("decoding modifier groups of %s: %w", mi.ID, err)
		}
		if err := json.Unmarshal(extras, &mi.LegacyExtras); err != nil {
			return nil, fmt.Errorf("decoding legacy extras of %s: %w", mi.ID, err)
		}
		out[mi.ID] = mi
	}
	return out, rows.Err()
}

// UpsertMerchant and UpsertMenuItem back the merchant catalog endpoints.
func (s *Store) UpsertMerchant(ctx context.Context, m Merchant) error {
	var fee *int64
	if m.DefaultDeliveryFee != nil {
		f := int64(*m.DefaultDeliveryFee)
		fee = &f
	}
	tokens := m.NotificationTokens
	if tokens == nil {
		tokens = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO merchants (id, name, is_open, commission_rate, default_delivery_fee, notification_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_open = EXCLUDED.is_open,
			commission_rate = EXCLUDED.commission_rate,
			default_delivery_fee = EXCLUDED.default_delivery_fee,
			notification_tokens = EXCLUDED.notification_tokens`,
		string(m.ID), m.Name, m.IsOpen, m.CommissionRate, fee, tokens,
	)
	return err
}

func (s *Store) UpsertMenuItem(ctx context.Context, mi MenuItem) error {
	groups, err := json.Marshal(nonNilGroups(mi.ModifierGroups))
	if err != nil {
		return err
	}
	extras, err := json.Marshal(nonNilExtras(mi.LegacyExtras))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO menu_items (id, merchant_id, name, price, is_available, modifier_groups, legacy_extras)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			is_available = EXCLUDED.is_available,
			modifier_groups = EXCLUDED.modifier_groups,
			legacy_extras = EXCLUDED.legacy_extras`,
		string(mi.ID), string(mi.MerchantID), mi.Name, int64(mi.Price), mi.IsAvailable, string(groups), string(extras),
	)
	return err
}

func nonNilGroups(g []ModifierGroup) []ModifierGroup {
	if g == nil {
		return []ModifierGroup{}
	}
	return g
}

func nonNilExtras(e []LegacyExtra) []LegacyExtra {
	if e == nil {
		return []LegacyExtra{}
	}
	return e
}
