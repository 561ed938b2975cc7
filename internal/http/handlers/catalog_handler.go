// README: Catalog handlers: merchants maintain their storefront and menu items.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fooddash/internal/http/middleware"
	"fooddash/internal/modules/pricing"
	"fooddash/internal/types"
)

type CatalogWriter interface {
	UpsertMerchant(ctx context.Context, m pricing.Merchant) error
	UpsertMenuItem(ctx context.Context, mi pricing.MenuItem) error
}

type CatalogHandler struct {
	catalog CatalogWriter
}

func NewCatalogHandler(c CatalogWriter) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// ownMerchant lets admins edit any merchant and merchant staff only their own.
func ownMerchant(c *gin.Context) (types.ID, bool) {
	id := types.ID(c.Param("id"))
	a := middleware.Caller(c)
	if a.Role == types.RoleAdmin || (a.Role == types.RoleMerchant && a.PartyID() == id) {
		return id, true
	}
	writeError(c, http.StatusForbidden, "permission-denied", "not allowed to edit this merchant")
	return "", false
}

type merchantReq struct {
	Name               string       `json:"name"`
	IsOpen             bool         `json:"is_open"`
	CommissionRate     float64      `json:"commission_rate"`
	DefaultDeliveryFee *types.Money `json:"default_delivery_fee"`
	NotificationTokens []string     `json:"notification_tokens"`
}

func (h *CatalogHandler) PutMerchant(c *gin.Context) {
	id, ok := ownMerchant(c)
	if !ok {
		return
	}
	var req merchantReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		writeError(c, http.StatusBadRequest, "invalid-argument", "name is required")
		return
	}
	if req.CommissionRate < 0 || req.CommissionRate > 100 {
		writeError(c, http.StatusBadRequest, "invalid-argument", "commission_rate must be within 0..100")
		return
	}
	err := h.catalog.UpsertMerchant(c.Request.Context(), pricing.Merchant{
		ID:                 id,
		Name:               req.Name,
		IsOpen:             req.IsOpen,
		CommissionRate:     req.CommissionRate,
		DefaultDeliveryFee: req.DefaultDeliveryFee,
		NotificationTokens: req.NotificationTokens,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

type menuItemReq struct {
	Name           string                  `json:"name"`
	Price          types.Money             `json:"price"`
	IsAvailable    bool                    `json:"is_available"`
	ModifierGroups []pricing.ModifierGroup `json:"modifier_groups"`
	LegacyExtras   []pricing.LegacyExtra   `json:"extras"`
}

func (h *CatalogHandler) PutMenuItem(c *gin.Context) {
	merchantID, ok := ownMerchant(c)
	if !ok {
		return
	}
	var req menuItemReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Price < 0 {
		writeError(c, http.StatusBadRequest, "invalid-argument", "name and a non-negative price are required")
		return
	}
	err := h.catalog.UpsertMenuItem(c.Request.Context(), pricing.MenuItem{
		ID:             types.ID(c.Param("item_id")),
		MerchantID:     merchantID,
		Name:           req.Name,
		Price:          req.Price,
		IsAvailable:    req.IsAvailable,
		ModifierGroups: req.ModifierGroups,
		LegacyExtras:   req.LegacyExtras,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}
