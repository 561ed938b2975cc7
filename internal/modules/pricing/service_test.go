package pricing

import (
	"context"
	"errors"
	"testing"

	"fooddash/internal/modules/order"
	"fooddash/internal/types"
)

type fakeCatalog struct {
	merchants map[types.ID]*Merchant
	items     map[types.ID]MenuItem
	err       error
}

func (c *fakeCatalog) Merchant(_ context.Context, id types.ID) (*Merchant, error) {
	if c.err != nil {
		return nil, c.err
	}
	m, ok := c.merchants[id]
	if !ok {
		return nil, ErrMerchantNotFound
	}
	return m, nil
}

func (c *fakeCatalog) MenuItems(_ context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]MenuItem, error) {
	out := map[types.ID]MenuItem{}
	for _, id := range ids {
		if mi, ok := c.items[id]; ok && mi.MerchantID == merchantID {
			out[id] = mi
		}
	}
	return out, nil
}

type fakeTrust map[types.ID]int

func (f fakeTrust) TrustScore(_ context.Context, id types.ID) (int, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return 100, nil
}

func money(v types.Money) *types.Money { return &v }

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		merchants: map[types.ID]*Merchant{
			"m1":     {ID: "m1", Name: "Burger Barn", IsOpen: true},
			"m2":     {ID: "m2", Name: "Pho Place", IsOpen: true, DefaultDeliveryFee: money(20)},
			"closed": {ID: "closed", Name: "Night Owl", IsOpen: false},
		},
		items: map[types.ID]MenuItem{
			"burger": {
				ID: "burger", MerchantID: "m1", Name: "Burger", Price: 60, IsAvailable: true,
				ModifierGroups: []ModifierGroup{
					{ID: "size", MultiSelect: false, Options: []Option{{ID: "regular", PriceDelta: 0}, {ID: "large", PriceDelta: 15}, {ID: "xl", PriceDelta: 25}}},
					{ID: "toppings", MultiSelect: true, Options: []Option{{ID: "cheese", PriceDelta: 10}, {ID: "bacon", PriceDelta: 20}, {ID: "no-pickles", PriceDelta: -5}}},
				},
			},
			"fries":  {ID: "fries", MerchantID: "m1", Name: "Fries", Price: 30, IsAvailable: true, LegacyExtras: []LegacyExtra{{Name: "Gravy", Price: 5}}},
			"shake":  {ID: "shake", MerchantID: "m1", Name: "Shake", Price: 40, IsAvailable: false},
			"pho":    {ID: "pho", MerchantID: "m2", Name: "Pho", Price: 100, IsAvailable: true},
		},
	}
}

func newOrder(merchant types.ID, method order.PaymentMethod, items ...order.Item) *order.Order {
	return &order.Order{
		ID:         "o1",
		ClientID:   "c1",
		MerchantID: merchant,
		Items:      items,
		Payment:    order.Payment{Method: method},
	}
}

func validate(t *testing.T, s *Service, o *order.Order) *order.Validation {
	t.Helper()
	v, err := s.Validate(context.Background(), o)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return v
}

func TestValidateRejections(t *testing.T) {
	s := NewService(newCatalog(), fakeTrust{"shady": 10}, DefaultConfig(), nil)

	cases := []struct {
		name string
		o    *order.Order
		want string
	}{
		{"unknown merchant", newOrder("ghost", order.PaymentCash, order.Item{MenuItemID: "burger", Quantity: 1}), ReasonMerchantNotFound},
		{"closed merchant", newOrder("closed", order.PaymentCash, order.Item{MenuItemID: "burger", Quantity: 1}), ReasonMerchantClosed},
		{"unavailable item", newOrder("m1", order.PaymentCash, order.Item{MenuItemID: "burger", Quantity: 1}, order.Item{MenuItemID: "shake", Quantity: 1}), "item unavailable: Shake"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := validate(t, s, tc.o)
			if v.Rejection != tc.want {
				t.Fatalf("rejection = %q, want %q", v.Rejection, tc.want)
			}
		})
	}

	t.Run("trust below hard floor", func(t *testing.T) {
		o := newOrder("m1", order.PaymentCash, order.Item{MenuItemID: "fries", Quantity: 1, DeclaredSubtotal: 30})
		o.ClientID = "shady"
		if v := validate(t, s, o); v.Rejection != ReasonAccountSuspended {
			t.Fatalf("expected %q, got %q", ReasonAccountSuspended, v.Rejection)
		}
	})
}

func TestValidateTrustOnlyGatesCash(t *testing.T) {
	s := NewService(newCatalog(), fakeTrust{"shady": 10, "meh": 45}, DefaultConfig(), nil)

	o := newOrder("m1", order.PaymentDigital, order.Item{MenuItemID: "fries", Quantity: 1, DeclaredSubtotal: 30})
	o.ClientID = "shady"
	if v := validate(t, s, o); v.Rejection != "" {
		t.Fatalf("digital payment should skip the trust gate, got %q", v.Rejection)
	}

	o = newOrder("m1", order.PaymentCash, order.Item{MenuItemID: "fries", Quantity: 1, DeclaredSubtotal: 30})
	o.ClientID = "meh"
	v := validate(t, s, o)
	if v.Rejection != "" || len(v.Warnings) != 1 || v.Warnings[0] != WarningLowTrust {
		t.Fatalf("expected low trust warning only, got %+v", v)
	}
}

func TestUnitPriceModifiers(t *testing.T) {
	burger := newCatalog().items["burger"]
	cases := []struct {
		name       string
		selections []order.Selection
		want       types.Money
	}{
		{"base", nil, 60},
		{"single select", []order.Selection{{GroupID: "size", OptionIDs: []string{"large"}}}, 75},
		{"single select counts first known option", []order.Selection{{GroupID: "size", OptionIDs: []string{"bogus", "xl", "large"}}}, 85},
		{"multi select sums", []order.Selection{{GroupID: "toppings", OptionIDs: []string{"cheese", "bacon"}}}, 90},
		{"unknown group ignored", []order.Selection{{GroupID: "sauce", OptionIDs: []string{"bbq"}}}, 60},
		{"unknown option ignored", []order.Selection{{GroupID: "toppings", OptionIDs: []string{"gold"}}}, 60},
		{"repeated option counts once", []order.Selection{{GroupID: "toppings", OptionIDs: []string{"no-pickles", "no-pickles", "no-pickles"}}}, 55},
		{"option repeated across selections counts once", []order.Selection{
			{GroupID: "toppings", OptionIDs: []string{"cheese"}},
			{GroupID: "toppings", OptionIDs: []string{"cheese", "bacon"}},
		}, 90},
		{"single select group sent twice keeps first", []order.Selection{
			{GroupID: "size", OptionIDs: []string{"large"}},
			{GroupID: "size", OptionIDs: []string{"xl"}},
		}, 75},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnitPrice(burger, tc.selections, nil); got != tc.want {
				t.Fatalf("UnitPrice = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLegacyExtras(t *testing.T) {
	fries := newCatalog().items["fries"]
	if got := UnitPrice(fries, nil, []string{"gravy", "Gravy", "truffle"}); got != 35 {
		t.Fatalf("expected extras counted once, got %d", got)
	}
}

func TestValidatePriceManipulation(t *testing.T) {
	s := NewService(newCatalog(), nil, DefaultConfig(), nil)

	honest := validate(t, s, newOrder("m1", order.PaymentDigital,
		order.Item{MenuItemID: "burger", Quantity: 2, DeclaredSubtotal: 121}))
	if honest.PriceManipulated {
		t.Fatal("difference within tolerance should not be flagged")
	}

	o := newOrder("m1", order.PaymentDigital,
		order.Item{MenuItemID: "burger", Quantity: 2, Selections: []order.Selection{{GroupID: "size", OptionIDs: []string{"large"}}}, DeclaredSubtotal: 100})
	o.Submitted = order.Declared{Subtotal: 100, DeliveryFee: money(25), ServiceFee: money(8), Total: 133}
	v := validate(t, s, o)
	if !v.PriceManipulated {
		t.Fatal("expected manipulation flag")
	}
	if v.Items[0].Subtotal != 150 || v.Totals.Subtotal != 150 || v.Totals.Total != 183 {
		t.Fatalf("expected server totals 150/183, got line %d totals %+v", v.Items[0].Subtotal, v.Totals)
	}
}

func TestValidateUnknownItemKeepsDeclaredSubtotal(t *testing.T) {
	s := NewService(newCatalog(), nil, DefaultConfig(), nil)
	v := validate(t, s, newOrder("m1", order.PaymentDigital,
		order.Item{MenuItemID: "burger", Quantity: 1, DeclaredSubtotal: 60},
		order.Item{MenuItemID: "secret-menu", Quantity: 2, DeclaredSubtotal: 44}))

	if v.Rejection != "" || v.PriceManipulated {
		t.Fatalf("unexpected result %+v", v)
	}
	line := v.Items[1]
	if line.Subtotal != 44 || len(line.Warnings) != 1 || line.Warnings[0] != WarningNotInMenu {
		t.Fatalf("unknown line should be trusted and flagged, got %+v", line)
	}
	if v.Totals.Subtotal != 104 {
		t.Fatalf("subtotal = %d, want 104", v.Totals.Subtotal)
	}
}

func TestValidateFees(t *testing.T) {
	s := NewService(newCatalog(), nil, DefaultConfig(), nil)

	// platform default delivery fee, 5% service fee rounded: 90 * 5% = 4.5 -> 5
	v := validate(t, s, newOrder("m1", order.PaymentDigital, order.Item{MenuItemID: "fries", Quantity: 3, DeclaredSubtotal: 90}))
	if v.Totals.DeliveryFee != 30 || v.Totals.ServiceFee != 5 || v.Totals.Total != 125 {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}

	// merchant default delivery fee and a trusted discount
	o := newOrder("m2", order.PaymentDigital, order.Item{MenuItemID: "pho", Quantity: 1, DeclaredSubtotal: 100})
	o.Submitted = order.Declared{Discount: 10}
	v = validate(t, s, o)
	if v.Totals.DeliveryFee != 20 || v.Totals.ServiceFee != 5 || v.Totals.Discount != 10 || v.Totals.Total != 115 {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}

	// client-provided fees win
	o.Submitted = order.Declared{DeliveryFee: money(12), ServiceFee: money(0)}
	v = validate(t, s, o)
	if v.Totals.DeliveryFee != 12 || v.Totals.ServiceFee != 0 || v.Totals.Total != 112 {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}
}

func TestValidateLookupErrorIsReturned(t *testing.T) {
	c := newCatalog()
	c.err = errors.New("connection reset")
	s := NewService(c, nil, DefaultConfig(), nil)
	if _, err := s.Validate(context.Background(), newOrder("m1", order.PaymentCash)); err == nil {
		t.Fatal("expected lookup error")
	}
}
