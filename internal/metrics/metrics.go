// Package metrics exports plugin lifecycle measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plughost"

// Metrics records activations, reloads and live contexts. It satisfies
// plugin.Observer.
type Metrics struct {
	reg *prometheus.Registry

	activations        *prometheus.CounterVec
	activationDuration *prometheus.HistogramVec
	contexts           prometheus.Gauge
	reloads            *prometheus.CounterVec
	safeMode           prometheus.Gauge
}

// New creates metrics on a private registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		activations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activations_total",
				Help:      "Plugin context activations by outcome.",
			},
			[]string{"plugin", "status"},
		),
		activationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activation_duration_seconds",
				Help:      "Time spent in a plugin's activate hook.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"plugin"},
		),
		contexts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_contexts",
			Help:      "Plugin contexts currently running.",
		}),
		reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Hot reloads by outcome.",
			},
			[]string{"plugin", "status"},
		),
		safeMode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "safe_mode",
			Help:      "1 while plugin activation is suspended after failed startups.",
		}),
	}
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Activation records one activation attempt.
func (m *Metrics) Activation(pluginID string, ok bool, d time.Duration) {
	m.activations.WithLabelValues(pluginID, status(ok)).Inc()
	m.activationDuration.WithLabelValues(pluginID).Observe(d.Seconds())
}

// Contexts sets the number of live contexts.
func (m *Metrics) Contexts(n int) {
	m.contexts.Set(float64(n))
}

// Reload records one hot reload.
func (m *Metrics) Reload(pluginID string, ok bool) {
	m.reloads.WithLabelValues(pluginID, status(ok)).Inc()
}

// SafeMode records whether safe mode is on.
func (m *Metrics) SafeMode(on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.safeMode.Set(v)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
