package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-pos/internal/auth"
	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/infrastructure/store"
	"github.com/example/clinic-pos/internal/metrics"
	"github.com/example/clinic-pos/internal/receiving"
)

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type testServer struct {
	e     *echo.Echo
	store *store.MemoryStore
}

func newTestServer(t *testing.T, jwt *auth.JWTService) *testServer {
	t.Helper()
	mem := store.NewMemoryStore(time.Second)
	ctx := context.Background()
	require.NoError(t, mem.SaveProduct(ctx, catalog.Product{
		ID: "FRAME-1", Name: "Titanium frame", Category: catalog.CategoryFrame,
		Price: decimal.RequireFromString("237.40"), GSTRate: decimal.Zero, Active: true,
	}))
	require.NoError(t, mem.SaveProduct(ctx, catalog.Product{
		ID: "ATROPINE", Name: "Atropine 0.01% drops", Category: catalog.CategoryMedicine,
		Price: decimal.RequireFromString("180.00"), GSTRate: decimal.NewFromInt(12), Active: true, Restricted: true,
	}))

	numbers, err := order.NewNumberer(1)
	require.NoError(t, err)
	engine := checkout.NewEngine(mem, numbers, checkout.DefaultConfig(),
		checkout.WithClock(func() time.Time { return testNow }))
	handlers := NewHandlers(engine, receiving.NewService(mem, numbers, zerolog.Nop()), mem)

	e := NewRouter(handlers, RouterConfig{JWT: jwt, Logger: zerolog.Nop(), Metrics: metrics.New()})
	return &testServer{e: e, store: mem}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) receive(t *testing.T, body string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/goods-receipts", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

// ============================================
// Checkout Tests
// ============================================

func TestCheckout_CreatesOrder(t *testing.T) {
	s := newTestServer(t, nil)
	s.receive(t, `{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3}]}`)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", `{
		"customer_id": "C-100",
		"lines": [{"product_id": "FRAME-1", "quantity": 1}],
		"tenders": [{"method": "cash", "amount": "200.00"}, {"method": "card", "amount": 40, "reference": "AUTH-9"}]
	}`, map[string]string{IdempotencyKeyHeader: "till-1-0001"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.OrderID)
	assert.True(t, strings.HasPrefix(resp.OrderNumber, order.NumberPrefix))
	assert.Equal(t, "237.40", resp.Total)
	assert.Equal(t, "240.00", resp.PaidAmount)
	assert.Equal(t, "2.60", resp.Change)
	assert.Equal(t, "paid", resp.Status)
	assert.Equal(t, int64(2), resp.LoyaltyPointsEarned)
	assert.False(t, resp.Replayed)

	saved, err := s.store.OrderByID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "dev", saved.CashierID)
	assert.Equal(t, "till-1-0001", saved.IdempotencyKey)
}

func TestCheckout_ReplayReturns200(t *testing.T) {
	s := newTestServer(t, nil)
	s.receive(t, `{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3}]}`)
	body := `{"lines":[{"product_id":"FRAME-1","quantity":1}],"tenders":[{"method":"upi","amount":"237.40"}]}`
	headers := map[string]string{IdempotencyKeyHeader: "till-1-0002"}

	first := s.do(t, http.MethodPost, "/api/v1/checkout", body, headers)
	second := s.do(t, http.MethodPost, "/api/v1/checkout", body, headers)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	var a, b CheckoutResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.OrderID, b.OrderID)
	assert.True(t, b.Replayed)

	avail := s.do(t, http.MethodGet, "/api/v1/products/FRAME-1/availability", "", nil)
	assert.JSONEq(t, `{"product_id":"FRAME-1","available":2}`, avail.Body.String())
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"lines":`, http.StatusBadRequest, "validation_error"},
		{"empty cart", `{"lines":[],"tenders":[]}`, http.StatusBadRequest, "validation_error"},
		{"unknown product", `{"lines":[{"product_id":"NOPE","quantity":1}]}`, http.StatusBadRequest, "validation_error"},
		{"insufficient", `{"lines":[{"product_id":"FRAME-1","quantity":50}]}`, http.StatusUnprocessableEntity, "insufficient_stock"},
		{"bad tender", `{"lines":[{"product_id":"FRAME-1","quantity":1}],"tenders":[{"method":"cheque","amount":"10"}]}`, http.StatusUnprocessableEntity, "invalid_tender"},
		{"restricted", `{"lines":[{"product_id":"ATROPINE","quantity":1}]}`, http.StatusForbidden, "authorization_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.receive(t, `{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3},{"product_id":"ATROPINE","batch_no":"A-01","quantity":3,"expires_on":"2027-01-31"}]}`)

			rec := s.do(t, http.MethodPost, "/api/v1/checkout", tt.body, nil)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(checkout.KindConcurrencyConflict))
	assert.Equal(t, http.StatusRequestTimeout, statusFor(checkout.KindCanceled))
	assert.Equal(t, http.StatusNotFound, statusFor(checkout.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(checkout.KindPersistence))
}

// ============================================
// Query Tests
// ============================================

func TestOrderQueries(t *testing.T) {
	s := newTestServer(t, nil)
	s.receive(t, `{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3}]}`)
	rec := s.do(t, http.MethodPost, "/api/v1/checkout",
		`{"customer_email":"asha@example.com","lines":[{"product_id":"FRAME-1","quantity":2}],"tenders":[{"method":"card","amount":"474.80"}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	byID := s.do(t, http.MethodGet, "/api/v1/orders/"+created.OrderID, "", nil)
	require.Equal(t, http.StatusOK, byID.Code)
	var record order.Record
	require.NoError(t, json.Unmarshal(byID.Body.Bytes(), &record))
	assert.Equal(t, created.OrderNumber, record.Order.Number)
	assert.Equal(t, "asha@example.com", record.Order.CustomerEmail)
	require.Len(t, record.Order.Lines, 1)
	assert.Len(t, record.Order.Lines[0].Allocations, 1)

	byNumber := s.do(t, http.MethodGet, "/api/v1/orders/by-number/"+created.OrderNumber, "", nil)
	assert.Equal(t, http.StatusOK, byNumber.Code)

	missing := s.do(t, http.MethodGet, "/api/v1/orders/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "not_found", decodeError(t, missing).Kind)

	report := s.do(t, http.MethodGet, "/api/v1/reports/daily?date=2026-10-18", "", nil)
	assert.JSONEq(t, `{"date":"2026-10-18","total":"474.80","orders":1}`, report.Body.String())

	badDate := s.do(t, http.MethodGet, "/api/v1/reports/daily?date=18-10-2026", "", nil)
	assert.Equal(t, http.StatusBadRequest, badDate.Code)

	loyalty := s.do(t, http.MethodGet, "/api/v1/loyalty/C-unknown", "", nil)
	assert.JSONEq(t, `{"customer_id":"C-unknown","points":0}`, loyalty.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	health := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, health.Code)

	m := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), "clinic_pos_http_requests_total")
}

// ============================================
// Auth Tests
// ============================================

func TestRoutes_RequireToken(t *testing.T) {
	jwt := auth.NewJWTService("router-secret", time.Hour)
	s := newTestServer(t, jwt)

	rec := s.do(t, http.MethodGet, "/api/v1/loyalty/C1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cashier, _, err := jwt.GenerateToken("till-2", auth.RoleCashier)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + cashier}

	rec = s.do(t, http.MethodGet, "/api/v1/loyalty/C1", "", bearer)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/goods-receipts",
		`{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3}]}`, bearer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	inventory, _, err := jwt.GenerateToken("store-1", auth.RoleInventory)
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/api/v1/goods-receipts",
		`{"lines":[{"product_id":"FRAME-1","batch_no":"F-01","quantity":3}]}`,
		map[string]string{"Authorization": "Bearer " + inventory})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestReceiveGoods_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/goods-receipts",
		`{"lines":[{"product_id":"FRAME-1","batch_no":"","quantity":3}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/goods-receipts",
		`{"lines":[{"product_id":"GHOST","batch_no":"G-1","quantity":3}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Kind)
}
