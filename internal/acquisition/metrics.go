package acquisition

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "finboard"
	metricsSubsystem = "acquisition"
)

type metrics struct {
	fetchTotal     *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	streamMessages prometheus.Counter
	streamFailures *prometheus.CounterVec
	activeSessions *prometheus.GaugeVec
}

// newMetrics creates the engine's collectors and registers them with reg.
// A nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fetch_total",
			Help:      "REST fetches by result (success, error, stale)",
		}, []string{"result"}),

		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fetch_duration_seconds",
			Help:      "REST fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),

		streamMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_messages_total",
			Help:      "Messages received over stream connections",
		}),

		streamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_failures_total",
			Help:      "Stream failures by handling (error, suppressed, poll, retry)",
		}, []string{"handling"}),

		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_sessions",
			Help:      "Live acquisition sessions by mode",
		}, []string{"mode"}),
	}

	if reg != nil {
		m.fetchTotal = register(reg, m.fetchTotal)
		m.fetchDuration = register(reg, m.fetchDuration)
		m.streamMessages = register(reg, m.streamMessages)
		m.streamFailures = register(reg, m.streamFailures)
		m.activeSessions = register(reg, m.activeSessions)
	}
	return m
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
