// Package metrics exposes Prometheus instrumentation for the monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	probes       *prometheus.CounterVec
	probeLatency prometheus.Histogram
	transitions  *prometheus.CounterVec
	tickDuration prometheus.Histogram
	tickErrors   prometheus.Counter
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_probes_total",
				Help: "Probes performed, by result",
			},
			[]string{"result"},
		),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptime_probe_latency_ms",
			Help:    "Probe latency in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_state_transitions_total",
				Help: "Intervals opened, by new state",
			},
			[]string{"state"},
		),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptime_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uptime_tick_errors_total",
			Help: "Ticks that ended with at least one error",
		}),
	}
	reg.MustRegister(m.probes, m.probeLatency, m.transitions, m.tickDuration, m.tickErrors)
	return m
}

func (m *Metrics) ObserveProbe(up bool, latencyMS float64) {
	if m == nil {
		return
	}
	result := "down"
	if up {
		result = "up"
	}
	m.probes.WithLabelValues(result).Inc()
	m.probeLatency.Observe(latencyMS)
}

func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveTick(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	if failed {
		m.tickErrors.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
