package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCheckout(t *testing.T) {
	m := New()

	m.ObserveCheckout("paid", 1, 5, 20*time.Millisecond)
	m.ObserveCheckout("paid", 2, 3, 40*time.Millisecond)
	m.ObserveCheckout("insufficient_stock", 1, 0, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.UnitsSold))
}

func TestObserveRequest_StatusClass(t *testing.T) {
	m := New()

	m.ObserveRequest("/api/v1/checkout", 201, time.Millisecond)
	m.ObserveRequest("/api/v1/checkout", 422, time.Millisecond)
	m.ObserveRequest("/api/v1/checkout", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/v1/checkout", "2xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/v1/checkout", "4xx")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCheckout("paid", 1, 1, time.Millisecond)
		m.ObserveRequest("/", 200, time.Millisecond)
		m.DispatchDrop()
		m.DispatchFailure("kafka")
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.DispatchDrop()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_pos_dispatch_dropped_total 1")
}
