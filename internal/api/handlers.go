package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/clinic-pos/internal/api/middleware"
	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/receiving"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	engine    *checkout.Engine
	receiving *receiving.Service
	health    Pinger
}

func NewHandlers(engine *checkout.Engine, receivingSvc *receiving.Service, health Pinger) *Handlers {
	return &Handlers{
		engine:    engine,
		receiving: receivingSvc,
		health:    health,
	}
}

type CheckoutResponse struct {
	OrderID             string `json:"order_id"`
	OrderNumber         string `json:"order_number"`
	Subtotal            string `json:"subtotal"`
	Discount            string `json:"discount"`
	Tax                 string `json:"tax"`
	Total               string `json:"total"`
	PaidAmount          string `json:"paid_amount"`
	Change              string `json:"change"`
	Shortfall           string `json:"shortfall"`
	Status              string `json:"status"`
	LoyaltyPointsEarned int64  `json:"loyalty_points_earned"`
	Replayed            bool   `json:"replayed"`
}

func newCheckoutResponse(res *checkout.Result) CheckoutResponse {
	o := res.Order
	return CheckoutResponse{
		OrderID:             o.ID,
		OrderNumber:         o.Number,
		Subtotal:            o.Subtotal.StringFixed(2),
		Discount:            o.Discount.StringFixed(2),
		Tax:                 o.Tax.StringFixed(2),
		Total:               o.Total.StringFixed(2),
		PaidAmount:          o.Paid.StringFixed(2),
		Change:              o.Change.StringFixed(2),
		Shortfall:           o.Shortfall.StringFixed(2),
		Status:              string(o.Status),
		LoyaltyPointsEarned: o.LoyaltyPointsEarned,
		Replayed:            res.Replayed,
	}
}

// Checkout Handlers

func (h *Handlers) Checkout(c echo.Context) error {
	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		return respondValidation(c, "malformed checkout body")
	}
	if key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = key
	}
	req.CashierID = middleware.CashierID(c)

	res, err := h.engine.Checkout(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, newCheckoutResponse(res))
}

// Order Handlers

func (h *Handlers) GetOrder(c echo.Context) error {
	o, err := h.engine.Order(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order.NewRecord(*o))
}

func (h *Handlers) GetOrderByNumber(c echo.Context) error {
	o, err := h.engine.OrderByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order.NewRecord(*o))
}

// Stock Handlers

func (h *Handlers) GetAvailability(c echo.Context) error {
	id := c.Param("id")
	available, err := h.engine.Availability(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"product_id": id, "available": available})
}

func (h *Handlers) ReceiveGoods(c echo.Context) error {
	var receipt receiving.GoodsReceipt
	if err := c.Bind(&receipt); err != nil {
		return respondValidation(c, "malformed goods receipt body")
	}

	batches, err := h.receiving.Receive(c.Request().Context(), receipt)
	if err != nil {
		return respondReceivingError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"batches": batches})
}

// Loyalty and Report Handlers

func (h *Handlers) GetLoyalty(c echo.Context) error {
	acc, err := h.engine.LoyaltyBalance(c.Request().Context(), c.Param("customer_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"customer_id": acc.CustomerID, "points": acc.Points})
}

func (h *Handlers) GetDailyReport(c echo.Context) error {
	day := h.engine.Today()
	if raw := c.QueryParam("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return respondValidation(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}

	summary, err := h.engine.DailySummary(c.Request().Context(), day)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"date":   summary.Date,
		"total":  summary.Total.StringFixed(2),
		"orders": summary.Orders,
	})
}

func (h *Handlers) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
