// README: Driver handlers for profile, going online/offline and location heartbeats.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fooddash/internal/http/middleware"
	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/location"
	"fooddash/internal/types"
)

type DriverPresence interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	GoOnline(ctx context.Context, id types.ID) (*driver.Driver, error)
	GoOffline(ctx context.Context, id types.ID) error
}

type Heartbeats interface {
	Heartbeat(ctx context.Context, u location.Update) error
	Seen(ctx context.Context, id types.ID) error
	Leave(ctx context.Context, id types.ID) error
}

type DriverHandler struct {
	drivers  DriverPresence
	presence Heartbeats
}

func NewDriverHandler(drivers DriverPresence, presence Heartbeats) *DriverHandler {
	return &DriverHandler{drivers: drivers, presence: presence}
}

// self ensures the authenticated driver only acts on its own record.
func self(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if middleware.CallerRole(c) != string(types.RoleDriver) || middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "permission-denied", "id does not match authenticated driver")
		return "", false
	}
	return types.ID(id), true
}

type driverResp struct {
	ID                 types.ID    `json:"id"`
	DisplayName        string      `json:"display_name"`
	IsVerified         bool        `json:"is_verified"`
	IsOnline           bool        `json:"is_online"`
	IsAvailable        bool        `json:"is_available"`
	IsBlockedDueToCash bool        `json:"is_blocked_due_to_cash"`
	CashInHand         types.Money `json:"cash_in_hand"`
	MaxCashLimit       types.Money `json:"max_cash_limit"`
	CurrentOrderID     *types.ID   `json:"current_order_id,omitempty"`
	DailyDeliveries    int         `json:"daily_deliveries"`
	DailyEarnings      types.Money `json:"daily_earnings"`
	TotalDeliveries    int         `json:"total_deliveries"`
}

func (h *DriverHandler) Get(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	d, err := h.drivers.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, driverResp{
		ID:                 d.ID,
		DisplayName:        d.DisplayName,
		IsVerified:         d.IsVerified,
		IsOnline:           d.IsOnline,
		IsAvailable:        d.IsAvailable,
		IsBlockedDueToCash: d.IsBlockedDueToCash,
		CashInHand:         d.CashInHand,
		MaxCashLimit:       d.MaxCashLimit,
		CurrentOrderID:     d.CurrentOrderID,
		DailyDeliveries:    d.DailyDeliveries,
		DailyEarnings:      d.DailyEarnings,
		TotalDeliveries:    d.TotalDeliveries,
	})
}

type locationReq struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	NotificationToken string  `json:"notification_token"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", "invalid json")
		return
	}
	err := h.presence.Heartbeat(c.Request.Context(), location.Update{
		DriverID:          id,
		Position:          types.Point{Lat: req.Lat, Lng: req.Lng},
		NotificationToken: req.NotificationToken,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *DriverHandler) Online(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	d, err := h.drivers.GoOnline(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	// A driver that just came online is alive until its first heartbeat.
	if err := h.presence.Seen(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
	}
	writeJSON(c, http.StatusOK, gin.H{"is_online": d.IsOnline, "is_available": d.IsAvailable})
}

func (h *DriverHandler) Offline(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	if err := h.drivers.GoOffline(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	if err := h.presence.Leave(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"is_online": false})
}
