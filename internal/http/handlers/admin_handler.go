// README: Admin handlers: cash liquidation, driver verification/suspension, role user provisioning.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fooddash/internal/http/middleware"
	"fooddash/internal/infra"
	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/ledger"
	"fooddash/internal/types"
)

type Liquidator interface {
	Liquidate(ctx context.Context, driverID types.ID, amount types.Money, adminID types.ID) (*ledger.LiquidationResult, error)
	Entries(ctx context.Context, driverID types.ID, limit int) ([]ledger.Entry, error)
}

type DriverAdmin interface {
	Onboard(ctx context.Context, cmd driver.OnboardCommand) (*driver.Driver, error)
	Verify(ctx context.Context, id types.ID) error
	Suspend(ctx context.Context, id types.ID) error
}

type AdminHandler struct {
	ledger       Liquidator
	drivers      DriverAdmin
	users        infra.UserProvisioner
	defaultLimit types.Money
}

func NewAdminHandler(l Liquidator, d DriverAdmin, users infra.UserProvisioner, defaultLimit types.Money) *AdminHandler {
	return &AdminHandler{ledger: l, drivers: d, users: users, defaultLimit: defaultLimit}
}

type liquidateReq struct {
	AmountPaid json.Number `json:"amount_paid"`
}

type liquidateResp struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	NewDebt types.Money `json:"new_debt"`
}

func (h *AdminHandler) Liquidate(c *gin.Context) {
	var req liquidateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", "amount_paid must be a number")
		return
	}
	amount, err := req.AmountPaid.Int64()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", ledger.ErrInvalidAmount.Error())
		return
	}
	driverID := types.ID(c.Param("id"))
	res, err := h.ledger.Liquidate(c.Request.Context(), driverID, types.Money(amount), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	msg := fmt.Sprintf("liquidated %d; outstanding cash %d", amount, res.NewDebt)
	if res.Unblocked {
		msg += "; driver unblocked"
	}
	writeJSON(c, http.StatusOK, liquidateResp{Success: true, Message: msg, NewDebt: res.NewDebt})
}

type entryResp struct {
	ID           string           `json:"id"`
	Type         ledger.EntryType `json:"type"`
	OrderID      *types.ID        `json:"order_id,omitempty"`
	Amount       types.Money      `json:"amount"`
	PreviousDebt types.Money      `json:"previous_debt"`
	NewDebt      types.Money      `json:"new_debt"`
	AdminID      *types.ID        `json:"admin_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Entries lists a driver's cash audit trail, newest first.
func (h *AdminHandler) Entries(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(c, http.StatusBadRequest, "invalid-argument", "limit must be within 1..500")
			return
		}
		limit = n
	}
	entries, err := h.ledger.Entries(c.Request.Context(), types.ID(c.Param("id")), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]entryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResp{
			ID:           e.ID.String(),
			Type:         e.Type,
			OrderID:      e.OrderID,
			Amount:       e.Amount,
			PreviousDebt: e.PreviousDebt,
			NewDebt:      e.NewDebt,
			AdminID:      e.AdminID,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": out})
}

func (h *AdminHandler) Verify(c *gin.Context) {
	if err := h.drivers.Verify(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) Suspend(c *gin.Context) {
	if err := h.drivers.Suspend(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

type driverData struct {
	AssignedRestaurantID string      `json:"assigned_restaurant_id"`
	MaxCashLimit         types.Money `json:"max_cash_limit"`
}

type createUserReq struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	DisplayName string      `json:"display_name"`
	Role        string      `json:"role"`
	MerchantID  string      `json:"merchant_id"`
	Driver      *driverData `json:"driver"`
}

func (r createUserReq) validate() error {
	if !strings.Contains(r.Email, "@") || len(r.Password) < 6 {
		return fmt.Errorf("email and a password of at least 6 characters are required")
	}
	switch types.Role(r.Role) {
	case types.RoleClient, types.RoleDriver, types.RoleAdmin:
	case types.RoleMerchant:
		if r.MerchantID == "" {
			return fmt.Errorf("merchant_id is required for merchant users")
		}
	default:
		return fmt.Errorf("unknown role %q", r.Role)
	}
	return nil
}

// CreateUser provisions an auth account with role claims. Drivers also get an
// unverified, offline driver record.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", err.Error())
		return
	}

	claims := map[string]interface{}{"role": req.Role}
	if req.MerchantID != "" {
		claims["merchant_id"] = req.MerchantID
	}
	uid, err := h.users.CreateUser(c.Request.Context(), infra.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Claims:      claims,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if types.Role(req.Role) == types.RoleDriver {
		cmd := driver.OnboardCommand{ID: types.ID(uid), DisplayName: req.DisplayName, MaxCashLimit: h.defaultLimit}
		if req.Driver != nil {
			if req.Driver.AssignedRestaurantID != "" {
				m := types.ID(req.Driver.AssignedRestaurantID)
				cmd.AssignedRestaurantID = &m
			}
			if req.Driver.MaxCashLimit > 0 {
				cmd.MaxCashLimit = req.Driver.MaxCashLimit
			}
		}
		if _, err := h.drivers.Onboard(c.Request.Context(), cmd); err != nil {
			writeDomainError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusCreated, gin.H{"success": true, "uid": uid})
}
