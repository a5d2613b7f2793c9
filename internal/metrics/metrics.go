// Package metrics provides Prometheus instrumentation for filter sessions.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Publication triggers
const (
	TriggerApply  = "apply"
	TriggerSearch = "search"
	TriggerLoad   = "load"
	TriggerClear  = "clear"
)

// Import results
const (
	ImportOK        = "ok"
	ImportMalformed = "malformed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	QueriesPublished *prometheus.CounterVec
	Imports          *prometheus.CounterVec
	SavedFilters     prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QueriesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyfilter_queries_published_total",
			Help: "Composed queries published to the data source, by trigger",
		}, []string{"trigger"}),
		Imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyfilter_imports_total",
			Help: "Saved-filter imports, by result",
		}, []string{"result"}),
		SavedFilters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lazyfilter_saved_filters",
			Help: "Number of saved filters in the store",
		}),
	}

	for _, c := range []prometheus.Collector{m.QueriesPublished, m.Imports, m.SavedFilters} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordPublish counts one publication for trigger
func (m *Metrics) RecordPublish(trigger string) {
	if m == nil {
		return
	}
	m.QueriesPublished.WithLabelValues(trigger).Inc()
}

// RecordImport counts one import attempt
func (m *Metrics) RecordImport(result string) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(result).Inc()
}

// SetSavedFilters sets the saved-filter gauge
func (m *Metrics) SetSavedFilters(n int) {
	if m == nil {
		return
	}
	m.SavedFilters.Set(float64(n))
}
