// README: Order handlers for create, read, status changes, driver accept and rating.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fooddash/internal/http/middleware"
	"fooddash/internal/modules/order"
	"fooddash/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type itemReq struct {
	MenuItemID string            `json:"menu_item_id"`
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	Selections []order.Selection `json:"selections"`
	Extras     []string          `json:"extras"`
	Subtotal   types.Money       `json:"subtotal"`
}

type createOrderReq struct {
	MerchantID    string       `json:"merchant_id"`
	Items         []itemReq    `json:"items"`
	Subtotal      types.Money  `json:"subtotal"`
	DeliveryFee   *types.Money `json:"delivery_fee"`
	ServiceFee    *types.Money `json:"service_fee"`
	Discount      types.Money  `json:"discount"`
	Total         types.Money  `json:"total"`
	PaymentMethod string       `json:"payment_method"`
}

type orderResp struct {
	ID               types.ID             `json:"id"`
	Number           string               `json:"order_number"`
	ClientID         types.ID             `json:"client_id"`
	MerchantID       types.ID             `json:"merchant_id"`
	DriverID         *types.ID            `json:"driver_id,omitempty"`
	Status           order.Status         `json:"status"`
	Items            []order.Item         `json:"items"`
	Totals           order.Totals         `json:"totals"`
	Payment          order.Payment        `json:"payment"`
	Timestamps       map[string]time.Time `json:"timestamps"`
	History          []order.HistoryEntry `json:"status_history"`
	CancelReason     *string              `json:"cancellation_reason,omitempty"`
	Rating           *order.Rating        `json:"rating,omitempty"`
	ServerValidated  bool                 `json:"server_validated"`
	PriceManipulated bool                 `json:"price_manipulation_detected"`
	Warnings         []string             `json:"warnings,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func toOrderResp(o *order.Order) orderResp {
	return orderResp{
		ID:               o.ID,
		Number:           o.Number,
		ClientID:         o.ClientID,
		MerchantID:       o.MerchantID,
		DriverID:         o.DriverID,
		Status:           o.Status,
		Items:            o.Items,
		Totals:           o.Totals,
		Payment:          o.Payment,
		Timestamps:       o.Timestamps,
		History:          o.StatusHistory,
		CancelReason:     o.CancelReason,
		Rating:           o.Rating,
		ServerValidated:  o.ServerValidated,
		PriceManipulated: o.PriceManipulated,
		Warnings:         o.Warnings,
		CreatedAt:        o.CreatedAt,
	}
}

func (h *OrderHandler) Create(c *gin.Context) {
	if middleware.CallerRole(c) != string(types.RoleClient) {
		writeError(c, http.StatusForbidden, "permission-denied", "only clients place orders")
		return
	}
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", "invalid json")
		return
	}
	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{
			MenuItemID:       types.ID(it.MenuItemID),
			Name:             it.Name,
			Quantity:         it.Quantity,
			Selections:       it.Selections,
			Extras:           it.Extras,
			DeclaredSubtotal: it.Subtotal,
		})
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		ClientID:   types.ID(middleware.CallerUID(c)),
		MerchantID: types.ID(req.MerchantID),
		Items:      items,
		Declared: order.Declared{
			Subtotal:    req.Subtotal,
			DeliveryFee: req.DeliveryFee,
			ServiceFee:  req.ServiceFee,
			Discount:    req.Discount,
			Total:       req.Total,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toOrderResp(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !canView(o, middleware.Caller(c)) {
		writeError(c, http.StatusForbidden, "permission-denied", "not a party to this order")
		return
	}
	writeJSON(c, http.StatusOK, toOrderResp(o))
}

type statusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "invalid-argument", "status is required")
		return
	}
	o, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID: types.ID(c.Param("id")),
		To:      order.Status(req.Status),
		Actor:   middleware.Caller(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResp(o))
}

func (h *OrderHandler) Accept(c *gin.Context) {
	o, err := h.order.Accept(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResp(o))
}

type ratingReq struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid-argument", "invalid json")
		return
	}
	o, err := h.order.Rate(c.Request.Context(), types.ID(c.Param("id")), middleware.Caller(c), req.Stars, req.Comment)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResp(o))
}

// canView lets drivers see open orders they were offered; everything else is party-only.
func canView(o *order.Order, a types.Actor) bool {
	switch a.Role {
	case types.RoleAdmin:
		return true
	case types.RoleClient:
		return o.ClientID == a.ID
	case types.RoleMerchant:
		return o.MerchantID == a.PartyID()
	case types.RoleDriver:
		if o.Status == order.StatusSearchingDriver {
			return true
		}
		return o.DriverID != nil && *o.DriverID == a.ID
	}
	return false
}
