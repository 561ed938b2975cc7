// README: Authoritative menu and merchant definitions used to re-price submitted orders.
package pricing

import (
	"fooddash/internal/types"
)

type Merchant struct {
	ID                 types.ID
	Name               string
	IsOpen             bool
	CommissionRate     float64
	DefaultDeliveryFee *types.Money
	NotificationTokens []string
}

type Option struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PriceDelta types.Money `json:"price_delta"`
}

type ModifierGroup struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Required    bool     `json:"required"`
	MultiSelect bool     `json:"multi_select"`
	Options     []Option `json:"options"`
}

// LegacyExtra is a flat add-on from menus created before modifier groups existed.
type LegacyExtra struct {
	Name  string      `json:"name"`
	Price types.Money `json:"price"`
}

type MenuItem struct {
	ID             types.ID
	MerchantID     types.ID
	Name           string
	Price          types.Money
	IsAvailable    bool
	ModifierGroups []ModifierGroup
	LegacyExtras   []LegacyExtra
}

func (g ModifierGroup) option(id string) (Option, bool) {
	for _, o := range g.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

const (
	WarningNotInMenu = "item_not_in_menu"
	WarningLowTrust  = "low_trust_score"

	ReasonMerchantNotFound = "restaurant not found"
	ReasonMerchantClosed   = "restaurant is closed"
	ReasonAccountSuspended = "account suspended"
)
