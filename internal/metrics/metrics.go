package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/df07/go-progressive-bridge/pkg/session"
)

// Metrics holds all Prometheus metrics for the bridge. It implements
// session.Observer and is safe to share between sessions on different loops.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	SessionsUnmounted *prometheus.CounterVec

	// Invalidation metrics
	InvalidationsTotal *prometheus.CounterVec

	// Build metrics
	BuildDuration *prometheus.HistogramVec

	// Tick metrics
	TicksTotal     *prometheus.CounterVec
	SamplesTotal   prometheus.Counter
	SessionSamples *prometheus.GaugeVec

	// Transport metrics
	ConnectionsActive prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	FramesSent        prometheus.Counter
}

var _ session.Observer = (*Metrics)(nil)

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_sessions_active",
				Help: "Number of currently mounted sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_sessions_total",
				Help: "Total number of sessions mounted",
			},
		),
		SessionsUnmounted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_sessions_unmounted_total",
				Help: "Total number of sessions unmounted, by cause",
			},
			[]string{"cause"},
		),

		InvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_invalidations_total",
				Help: "Total number of accumulation invalidations",
			},
			[]string{"reason", "outcome"},
		),

		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_build_duration_seconds",
				Help:    "Duration of scene pipeline builds in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_ticks_total",
				Help: "Total number of frame loop ticks, by result",
			},
			[]string{"result"},
		),
		SamplesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_samples_rendered_total",
				Help: "Total number of render steps submitted by the scheduler",
			},
		),
		SessionSamples: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_session_samples",
				Help: "Accumulated samples of each mounted session",
			},
			[]string{"session_id"},
		),

		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_connections_active",
				Help: "Number of open viewer connections",
			},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_messages_received_total",
				Help: "Total number of viewer messages received, by type",
			},
			[]string{"type"},
		),
		FramesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_frames_sent_total",
				Help: "Total number of frames sent to viewers",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsTotal)
	m.registry.MustRegister(m.SessionsUnmounted)
	m.registry.MustRegister(m.InvalidationsTotal)
	m.registry.MustRegister(m.BuildDuration)
	m.registry.MustRegister(m.TicksTotal)
	m.registry.MustRegister(m.SamplesTotal)
	m.registry.MustRegister(m.SessionSamples)
	m.registry.MustRegister(m.ConnectionsActive)
	m.registry.MustRegister(m.MessagesReceived)
	m.registry.MustRegister(m.FramesSent)
}

// Mounted records a new session
func (m *Metrics) Mounted(id string) {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// Unmounted records a teardown and drops the session's sample gauge
func (m *Metrics) Unmounted(id string, cause string) {
	m.SessionsActive.Dec()
	m.SessionsUnmounted.WithLabelValues(cause).Inc()
	m.SessionSamples.DeleteLabelValues(id)
}

// Invalidated records an invalidation and its outcome
func (m *Metrics) Invalidated(_ string, reason session.Reason, outcome session.Outcome) {
	m.InvalidationsTotal.WithLabelValues(reason.String(), outcome.String()).Inc()
}

// BuildFinished records pipeline build latency
func (m *Metrics) BuildFinished(_ string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.BuildDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Ticked records a scheduler step
func (m *Metrics) Ticked(id string, result session.TickResult, samples int) {
	m.TicksTotal.WithLabelValues(result.String()).Inc()
	if result == session.TickInactive {
		return
	}
	if result == session.TickRendered {
		m.SamplesTotal.Inc()
	}
	m.SessionSamples.WithLabelValues(id).Set(float64(samples))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
