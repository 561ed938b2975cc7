// README: Common value objects (ids, money, actors) shared across modules.
package types

import "math"

type ID string

// Money is an amount in whole currency units.
type Money int64

// Percent returns p percent of m rounded half away from zero.
func (m Money) Percent(p float64) Money {
	return Money(math.Round(float64(m) * p / 100))
}

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Role string

const (
	RoleClient   Role = "client"
	RoleMerchant Role = "merchant"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleMerchant, RoleDriver, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is an authenticated caller. Authentication happens upstream.
// Merchant is set for merchant staff and names the merchant they act for.
type Actor struct {
	ID       ID
	Role     Role
	Merchant ID
}

// PartyID is the identity compared against an order's parties. Merchant staff
// match the order's merchant; everyone else matches by their own id.
func (a Actor) PartyID() ID {
	if a.Role == RoleMerchant && a.Merchant != "" {
		return a.Merchant
	}
	return a.ID
}

// System is the actor recorded for backend-initiated transitions.
var System = Actor{ID: "system", Role: RoleSystem}
