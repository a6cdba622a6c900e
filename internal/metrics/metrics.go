package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic_pos"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	LatencyMS        *prometheus.HistogramVec
	Checkouts        *prometheus.CounterVec
	CheckoutAttempts prometheus.Histogram
	CheckoutLatency  prometheus.Histogram
	UnitsSold        prometheus.Counter
	DispatchDropped  prometheus.Counter
	DispatchFailed   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "total",
			Help:      "Checkouts by outcome.",
		}, []string{"outcome"}),
		CheckoutAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "attempts",
			Help:      "Transaction attempts needed per checkout.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		CheckoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "duration_ms",
			Help:      "Checkout latency in milliseconds including retries.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		UnitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "units_sold_total",
			Help:      "Units deducted from stock batches by committed checkouts.",
		}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Order records dropped because the dispatch queue was full.",
		}),
		DispatchFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "failed_total",
			Help:      "Order record deliveries that failed, by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.Requests, m.LatencyMS, m.Checkouts, m.CheckoutAttempts, m.CheckoutLatency,
		m.UnitsSold, m.DispatchDropped, m.DispatchFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, statusClass(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObserveCheckout(outcome string, attempts int, units int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
	m.CheckoutAttempts.Observe(float64(attempts))
	m.CheckoutLatency.Observe(float64(elapsed.Milliseconds()))
	if units > 0 {
		m.UnitsSold.Add(float64(units))
	}
}

func (m *Metrics) DispatchDrop() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

func (m *Metrics) DispatchFailure(sink string) {
	if m == nil {
		return
	}
	m.DispatchFailed.WithLabelValues(sink).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
