// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"fooddash/internal/http/handlers"
	"fooddash/internal/http/middleware"
	"fooddash/internal/infra"
	"fooddash/internal/types"
)

type RouterDeps struct {
	Orders   *handlers.OrderHandler
	Drivers  *handlers.DriverHandler
	Admin    *handlers.AdminHandler
	Catalog  *handlers.CatalogHandler
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orders := api.Group("/orders")
	orders.POST("", deps.Orders.Create)
	orders.GET("/:id", deps.Orders.Get)
	orders.POST("/:id/status", deps.Orders.UpdateStatus)
	orders.POST("/:id/accept", middleware.RequireRole(types.RoleDriver), deps.Orders.Accept)
	orders.POST("/:id/rating", middleware.RequireRole(types.RoleClient), deps.Orders.Rate)

	drivers := api.Group("/drivers/:id", middleware.RequireRole(types.RoleDriver))
	drivers.GET("", deps.Drivers.Get)
	drivers.PUT("/location", deps.Drivers.UpdateLocation)
	drivers.POST("/online", deps.Drivers.Online)
	drivers.POST("/offline", deps.Drivers.Offline)

	merchants := api.Group("/merchants/:id", middleware.RequireRole(types.RoleMerchant, types.RoleAdmin))
	merchants.PUT("", deps.Catalog.PutMerchant)
	merchants.PUT("/menu-items/:item_id", deps.Catalog.PutMenuItem)

	admin := api.Group("/admin", middleware.RequireRole(types.RoleAdmin))
	admin.POST("/drivers/:id/liquidate", deps.Admin.Liquidate)
	admin.POST("/drivers/:id/verify", deps.Admin.Verify)
	admin.POST("/drivers/:id/suspend", deps.Admin.Suspend)
	admin.GET("/drivers/:id/ledger", deps.Admin.Entries)
	admin.POST("/users", deps.Admin.CreateUser)

	return r
}
