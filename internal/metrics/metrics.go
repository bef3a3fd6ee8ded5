package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockpulse"

// Metrics holds all collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal        prometheus.Counter
	TicksSkipped      prometheus.Counter
	TickFailures      prometheus.Counter
	TickDuration      prometheus.Histogram
	InstrumentUpdates *prometheus.CounterVec
	MarketOpen        prometheus.Gauge
	Subscribers       prometheus.Gauge
	DroppedSubs       prometheus.Counter
	PublishErrors     prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Ticks executed",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_skipped_total",
			Help:      "Ticks dropped because the previous tick was still running",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_failures_total",
			Help:      "Per-instrument or whole-tick failures",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one tick body",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		InstrumentUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "instrument_updates_total",
			Help:      "Price changes applied, by symbol",
		}, []string{"symbol"}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "market_open",
			Help:      "1 while the market is Open",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Connected subscribers",
		}),
		DroppedSubs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers disconnected because their queue was full",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publish_errors_total",
			Help:      "Events that failed to publish to Redis",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.TicksSkipped,
		m.TickFailures,
		m.TickDuration,
		m.InstrumentUpdates,
		m.MarketOpen,
		m.Subscribers,
		m.DroppedSubs,
		m.PublishErrors,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TickRan records a completed tick and its duration.
func (m *Metrics) TickRan(seconds float64) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(seconds)
}

// TickSkipped records a tick dropped by the re-entrancy guard.
func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// TickFailed records a failed instrument update or a panicked tick.
func (m *Metrics) TickFailed() {
	if m == nil {
		return
	}
	m.TickFailures.Inc()
}

// InstrumentUpdated records one price change for symbol.
func (m *Metrics) InstrumentUpdated(symbol string) {
	if m == nil {
		return
	}
	m.InstrumentUpdates.WithLabelValues(symbol).Inc()
}

// SetMarketOpen sets the market open gauge.
func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.MarketOpen.Set(1)
	} else {
		m.MarketOpen.Set(0)
	}
}

// SubscriberAdded records a connected subscriber.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.Subscribers.Inc()
}

// SubscriberRemoved records a disconnect; dropped marks a slow subscriber.
func (m *Metrics) SubscriberRemoved(dropped bool) {
	if m == nil {
		return
	}
	m.Subscribers.Dec()
	if dropped {
		m.DroppedSubs.Inc()
	}
}

// PublishFailed records an event that could not be published to Redis.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}
