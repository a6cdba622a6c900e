package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/api/middleware"
	"github.com/example/clinic-pos/internal/auth"
	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/metrics"
)

type RouterConfig struct {
	// JWT is nil only in development, where every caller gets admin claims.
	JWT     *auth.JWTService
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func NewRouter(handlers *Handlers, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(cfg.Logger))
	e.Use(middleware.Logger(cfg.Logger))
	e.Use(middleware.Metrics(cfg.Metrics))

	e.GET("/healthz", handlers.Health)
	e.GET("/metrics", echo.WrapHandler(cfg.Metrics.Handler()))

	v1 := e.Group("/api/v1")
	if cfg.JWT != nil {
		v1.Use(middleware.Auth(cfg.JWT))
	} else {
		v1.Use(middleware.DevAuth())
	}

	// Checkout
	v1.POST("/checkout", handlers.Checkout)

	// Orders
	v1.GET("/orders/:id", handlers.GetOrder)
	v1.GET("/orders/by-number/:number", handlers.GetOrderByNumber)

	// Stock
	v1.GET("/products/:id/availability", handlers.GetAvailability)
	v1.POST("/goods-receipts", handlers.ReceiveGoods, middleware.RequireRole(auth.RoleInventory, auth.RoleAdmin))

	// Loyalty & reports
	v1.GET("/loyalty/:customer_id", handlers.GetLoyalty)
	v1.GET("/reports/daily", handlers.GetDailyReport)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return respondError(c, &checkout.Error{Kind: checkout.KindNotFound, Message: "no route for " + c.Request().URL.Path})
	})
	return e
}
