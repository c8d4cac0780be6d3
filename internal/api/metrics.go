package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	clients  prometheus.GaugeFunc
}

// newHTTPMetrics creates the API collectors and registers them with reg.
// With a nil reg they are still updated but never exported.
func newHTTPMetrics(reg prometheus.Registerer, clientCount func() int) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route pattern and status code",
		}, []string{"method", "route", "code"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route pattern",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
		}, []string{"route"}),

		clients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "finboard",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket push clients",
		}, func() float64 { return float64(clientCount()) }),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.clients)
	}
	return m
}

func (m *httpMetrics) observe(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}
