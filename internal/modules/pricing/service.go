// README: Price/integrity validator: re-prices submitted orders from the authoritative menu.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fooddash/internal/modules/order"
	"fooddash/internal/types"
)

var ErrMerchantNotFound = errors.New("merchant not found")

type Catalog interface {
	Merchant(ctx context.Context, id types.ID) (*Merchant, error)
	MenuItems(ctx context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]MenuItem, error)
}

type TrustSource interface {
	TrustScore(ctx context.Context, clientID types.ID) (int, error)
}

type Config struct {
	PlatformDeliveryFee types.Money
	ServiceFeePercent   float64
	Tolerance           types.Money
	TrustHardFloor      int
	TrustWarnBelow      int
}

func DefaultConfig() Config {
	return Config{
		PlatformDeliveryFee: 30,
		ServiceFeePercent:   5,
		Tolerance:           1,
		TrustHardFloor:      30,
		TrustWarnBelow:      60,
	}
}

type Service struct {
	catalog Catalog
	trust   TrustSource
	cfg     Config
	log     *slog.Logger
	tracer  trace.Tracer
}

func NewService(catalog Catalog, trust TrustSource, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{catalog: catalog, trust: trust, cfg: cfg, log: log, tracer: otel.Tracer("pricing")}
}

// Validate recomputes items and totals for o. Hard integrity failures come back as a
// Validation with Rejection set; returned errors are lookup failures only.
func (s *Service) Validate(ctx context.Context, o *order.Order) (*order.Validation, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Validate", trace.WithAttributes(
		attribute.String("order_id", string(o.ID)),
	))
	defer span.End()

	m, err := s.catalog.Merchant(ctx, o.MerchantID)
	if errors.Is(err, ErrMerchantNotFound) {
		return &order.Validation{Rejection: ReasonMerchantNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading merchant %s: %w", o.MerchantID, err)
	}
	if !m.IsOpen {
		return &order.Validation{Rejection: ReasonMerchantClosed}, nil
	}

	ids := make([]types.ID, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.MenuItemID)
	}
	menu, err := s.catalog.MenuItems(ctx, m.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading menu for %s: %w", m.ID, err)
	}

	v := &order.Validation{Items: make([]order.Item, 0, len(o.Items))}
	var subtotal types.Money
	for _, it := range o.Items {
		line := it
		line.Warnings = nil
		mi, ok := menu[it.MenuItemID]
		switch {
		case !ok:
			line.Warnings = []string{WarningNotInMenu}
			line.Subtotal = it.DeclaredSubtotal
			if it.Quantity > 0 {
				line.UnitPrice = it.DeclaredSubtotal / types.Money(it.Quantity)
			}
		case !mi.IsAvailable:
			return &order.Validation{Rejection: "item unavailable: " + mi.Name}, nil
		default:
			line.Name = mi.Name
			line.UnitPrice = UnitPrice(mi, it.Selections, it.Extras)
			line.Subtotal = line.UnitPrice * types.Money(it.Quantity)
			if (line.Subtotal - it.DeclaredSubtotal).Abs() > s.cfg.Tolerance {
				v.PriceManipulated = true
			}
		}
		subtotal += line.Subtotal
		v.Items = append(v.Items, line)
	}

	v.Totals = s.totals(o.Submitted, m, subtotal)

	if o.IsCash() && o.ClientID != "" && s.trust != nil {
		score, err := s.trust.TrustScore(ctx, o.ClientID)
		if err != nil {
			return nil, fmt.Errorf("loading trust score for %s: %w", o.ClientID, err)
		}
		switch {
		case score < s.cfg.TrustHardFloor:
			return &order.Validation{Rejection: ReasonAccountSuspended}, nil
		case score < s.cfg.TrustWarnBelow:
			v.Warnings = append(v.Warnings, WarningLowTrust)
		}
	}

	span.SetAttributes(attribute.Bool("price_manipulated", v.PriceManipulated))
	return v, nil
}

func (s *Service) totals(d order.Declared, m *Merchant, subtotal types.Money) order.Totals {
	t := order.Totals{Subtotal: subtotal, Discount: d.Discount}
	switch {
	case d.DeliveryFee != nil:
		t.DeliveryFee = *d.DeliveryFee
	case m.DefaultDeliveryFee != nil:
		t.DeliveryFee = *m.DefaultDeliveryFee
	default:
		t.DeliveryFee = s.cfg.PlatformDeliveryFee
	}
	if d.ServiceFee != nil {
		t.ServiceFee = *d.ServiceFee
	} else {
		t.ServiceFee = subtotal.Percent(s.cfg.ServiceFeePercent)
	}
	t.Total = t.Subtotal + t.DeliveryFee + t.ServiceFee - t.Discount
	return t
}

// UnitPrice is base price plus the deltas of selected options that exist on the item.
// Single-select groups count only their first recognised option.
func UnitPrice(mi MenuItem, selections []order.Selection, extras []string) types.Money {
	price := mi.Price
	// picked tracks options already priced per group; a group or option sent twice counts once.
	picked := make(map[string]map[string]bool, len(mi.ModifierGroups))
	for _, sel := range selections {
		for _, g := range mi.ModifierGroups {
			if g.ID != sel.GroupID {
				continue
			}
			if picked[g.ID] == nil {
				picked[g.ID] = map[string]bool{}
			}
			for _, optID := range sel.OptionIDs {
				if picked[g.ID][optID] || (!g.MultiSelect && len(picked[g.ID]) > 0) {
					continue
				}
				opt, ok := g.option(optID)
				if !ok {
					continue
				}
				picked[g.ID][optID] = true
				price += opt.PriceDelta
			}
		}
	}
	return price + legacyExtrasDelta(mi, extras)
}
