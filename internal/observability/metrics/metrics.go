// Package metrics exposes watchpost's prometheus collectors.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "watchpost"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	detections    *prometheus.CounterVec
	correlations  *prometheus.CounterVec
	skipped       prometheus.Counter
	notifications *prometheus.CounterVec
	providerFails *prometheus.CounterVec
	activeRules   prometheus.Gauge
	busDropped    prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detection events received, by source and target type.",
		}, []string{"source", "target_type"}),
		correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Detections applied to a watch rule, by target type.",
		}, []string{"target_type"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_skipped_total",
			Help:      "Candidate rule updates skipped during correlation.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered to the sink, by severity.",
		}, []string{"severity"}),
		providerFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_provider_failures_total",
			Help:      "External notification deliveries that failed, by provider.",
		}, []string{"provider"}),
		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rules",
			Help:      "Watch rules currently active.",
		}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_bus_dropped_total",
			Help:      "Detection events dropped because the bus buffer was full.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.detections, m.correlations, m.skipped, m.notifications,
		m.providerFails, m.activeRules, m.busDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry to serve from /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordDetection(source, targetType string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(source, targetType).Inc()
}

func (m *Metrics) RecordCorrelation(targetType string) {
	if m == nil {
		return
	}
	m.correlations.WithLabelValues(targetType).Inc()
}

func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) RecordNotification(severity string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFails.WithLabelValues(provider).Inc()
}

func (m *Metrics) SetActiveRules(n int) {
	if m == nil {
		return
	}
	m.activeRules.Set(float64(n))
}

func (m *Metrics) RecordBusDrop() {
	if m == nil {
		return
	}
	m.busDropped.Inc()
}
