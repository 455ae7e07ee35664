package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botmon"

// Metrics holds all Prometheus metrics for the process.
//
// Each instance owns its own registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	Signals          *prometheus.CounterVec
	SignalOutcomes   *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	RegistryOps      *prometheus.CounterVec
	RegistryDuration *prometheus.HistogramVec
	Commands         *prometheus.CounterVec
	StoreHealthy     prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_signals_total",
			Help:      "Presence signals received, by transition class",
		}, []string{"class"}),
		SignalOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_signal_outcomes_total",
			Help:      "Terminal state of processed presence signals",
		}, []string{"outcome"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Direct message notifications attempted, by result",
		}, []string{"result"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Time spent delivering one notification",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RegistryOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_ops_total",
			Help:      "Registry operations, by operation and result",
		}, []string{"op", "result"}),
		RegistryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_op_duration_seconds",
			Help:      "Registry operation latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"op"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slash command invocations, by command and result",
		}, []string{"command", "result"}),
		StoreHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_store_healthy",
			Help:      "1 when the last store health check succeeded",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry (tests use it with testutil).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveSignal(class string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SignalOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDispatch(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(result).Inc()
	m.DispatchDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRegistryOp(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.RegistryOps.WithLabelValues(op, result).Inc()
	m.RegistryDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) SetStoreHealthy(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.StoreHealthy.Set(1)
		return
	}
	m.StoreHealthy.Set(0)
}
