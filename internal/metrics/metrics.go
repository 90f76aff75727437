// Package metrics exposes Prometheus instrumentation for assessments and feeds
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry        *prometheus.Registry
	assessments     *prometheus.CounterVec
	mortalityRate   *prometheus.HistogramVec
	invalidReadings *prometheus.CounterVec
	feedRefreshes   *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquamonitor",
			Name:      "assessments_total",
			Help:      "Risk assessments performed, by source and risk level.",
		}, []string{"source", "risk_level"}),
		mortalityRate: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aquamonitor",
			Name:      "mortality_rate_percent",
			Help:      "Estimated mortality rate of scored readings.",
			Buckets:   []float64{0, 5, 10, 20, 40, 60, 80, 95},
		}, []string{"source"}),
		invalidReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquamonitor",
			Name:      "invalid_readings_total",
			Help:      "Readings rejected by validation, by source.",
		}, []string{"source"}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquamonitor",
			Name:      "feed_refreshes_total",
			Help:      "Pond feed fetches, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(m.assessments, m.mortalityRate, m.invalidReadings, m.feedRefreshes)
	return m
}

// ObserveAssessment records one scored reading
func (m *Metrics) ObserveAssessment(source, riskLevel string, mortalityRate float64) {
	m.assessments.WithLabelValues(source, riskLevel).Inc()
	m.mortalityRate.WithLabelValues(source).Observe(mortalityRate)
}

// ObserveInvalidReading records a rejected reading
func (m *Metrics) ObserveInvalidReading(source string) {
	m.invalidReadings.WithLabelValues(source).Inc()
}

// ObserveFeedRefresh records a feed fetch outcome, "ok" or "error"
func (m *Metrics) ObserveFeedRefresh(result string) {
	m.feedRefreshes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
