// README: Immutable cash ledger entries written alongside every driver debt change.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"fooddash/internal/types"
)

type EntryType string

const (
	EntryCashCollected EntryType = "cash_collected"
	EntryLiquidation   EntryType = "liquidation"
)

type Entry struct {
	ID           uuid.UUID
	Type         EntryType
	DriverID     types.ID
	OrderID      *types.ID
	Amount       types.Money
	PreviousDebt types.Money
	NewDebt      types.Money
	AdminID      *types.ID
	CreatedAt    time.Time
}

type LiquidationResult struct {
	PreviousDebt types.Money
	NewDebt      types.Money
	Unblocked    bool
}
