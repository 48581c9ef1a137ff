// Package metrics exposes Prometheus instrumentation for the onboarding chat.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service reports. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	TransitionsTotal *prometheus.CounterVec
	SessionsActive   prometheus.Gauge

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec

	// Insight metrics
	InsightResultsTotal *prometheus.CounterVec
	ProbesTotal         *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_transitions_total",
				Help: "Answers processed by the onboarding chat, by question before and after",
			},
			[]string{"from", "to"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "onboarding_sessions_active",
				Help: "Chat sessions currently held in memory",
			},
		),
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_store_operations_total",
				Help: "Conversation store operations by result",
			},
			[]string{"operation", "status"},
		),
		InsightResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_insight_results_total",
				Help: "Website analysis outcomes by kind",
			},
			[]string{"kind"},
		),
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_website_probes_total",
				Help: "Website reachability probes by result",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordStore(operation string, err error) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

func (m *Metrics) RecordInsight(kind string) {
	if m == nil {
		return
	}
	m.InsightResultsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordProbe(err error) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
