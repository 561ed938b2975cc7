// README: Order aggregate, line items, totals and status definitions.
package order

import (
	"time"

	"fooddash/internal/types"
)

type Status string

const (
	StatusCreated         Status = "created"
	StatusConfirmed       Status = "confirmed"
	StatusPreparing       Status = "preparing"
	StatusReady           Status = "ready"
	StatusSearchingDriver Status = "searching_driver"
	StatusAssigned        Status = "assigned_to_driver"
	StatusPickedUp        Status = "picked_up"
	StatusOnTheWay        Status = "on_the_way"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// Milestone is the timestamps key written when an order enters s.
func (s Status) Milestone() string {
	return string(s) + "_at"
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// HasDriver reports whether an order in s must carry a driver id.
func (s Status) HasDriver() bool {
	switch s {
	case StatusAssigned, StatusPickedUp, StatusOnTheWay, StatusDelivered:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentDigital PaymentMethod = "digital"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPendingCash PaymentStatus = "pending_cash"
	PaymentCollected   PaymentStatus = "collected"
)

type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CashCollected types.Money   `json:"cash_collected,omitempty"`
}

// Selection is the set of options a client picked inside one modifier group.
type Selection struct {
	GroupID   string   `json:"group_id"`
	OptionIDs []string `json:"option_ids"`
}

type Item struct {
	MenuItemID       types.ID    `json:"menu_item_id"`
	Name             string      `json:"name,omitempty"`
	Quantity         int         `json:"quantity"`
	Selections       []Selection `json:"selections,omitempty"`
	Extras           []string    `json:"extras,omitempty"`
	DeclaredSubtotal types.Money `json:"declared_subtotal"`
	UnitPrice        types.Money `json:"unit_price"`
	Subtotal         types.Money `json:"subtotal"`
	Warnings         []string    `json:"warnings,omitempty"`
}

type Totals struct {
	Subtotal    types.Money `json:"subtotal"`
	DeliveryFee types.Money `json:"delivery_fee"`
	ServiceFee  types.Money `json:"service_fee"`
	Discount    types.Money `json:"discount"`
	Total       types.Money `json:"total"`
}

// Declared holds the client-submitted money fields. Fees are optional.
type Declared struct {
	Subtotal    types.Money  `json:"subtotal"`
	DeliveryFee *types.Money `json:"delivery_fee,omitempty"`
	ServiceFee  *types.Money `json:"service_fee,omitempty"`
	Discount    types.Money  `json:"discount"`
	Total       types.Money  `json:"total"`
}

type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Actor  types.ID  `json:"actor"`
	Reason string    `json:"reason,omitempty"`
}

type Rating struct {
	Stars     int       `json:"stars"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID               types.ID
	Number           string
	ClientID         types.ID
	MerchantID       types.ID
	DriverID         *types.ID
	Status           Status
	StatusVersion    int
	Items            []Item
	Submitted        Declared
	Totals           Totals
	Payment          Payment
	Timestamps       map[string]time.Time
	StatusHistory    []HistoryEntry
	CancelReason     *string
	Rating           *Rating
	ServerValidated  bool
	PriceManipulated bool
	Warnings         []string
	CreatedAt        time.Time
}

// LastStatus is the status of the newest history entry.
func (o *Order) LastStatus() Status {
	if len(o.StatusHistory) == 0 {
		return ""
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}

func (o *Order) IsCash() bool {
	return o.Payment.Method == PaymentCash
}
