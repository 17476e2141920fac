package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the store's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	inserts     *prometheus.CounterVec
	queries     *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	removals    *prometheus.CounterVec
	snapshots   *prometheus.CounterVec
	patterns    prometheus.Gauge
}

// NewMetrics creates collectors registered on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patternmem",
			Name:      "inserts_total",
			Help:      "Pattern insert attempts by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patternmem",
			Name:      "queries_total",
			Help:      "Signature queries by whether any live candidate matched.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patternmem",
			Name:      "resolutions_total",
			Help:      "Conflict resolutions by strategy.",
		}, []string{"strategy"}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patternmem",
			Name:      "removals_total",
			Help:      "Records removed from the store by reason.",
		}, []string{"reason"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patternmem",
			Name:      "snapshots_total",
			Help:      "Snapshot writes by outcome.",
		}, []string{"outcome"}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "patternmem",
			Name:      "patterns",
			Help:      "Records currently held by the store.",
		}),
	}
	m.registry.MustRegister(m.inserts, m.queries, m.resolutions, m.removals, m.snapshots, m.patterns)
	return m
}

// Registry exposes the registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncInsert counts an insert attempt; outcome is "ok" or an error code.
func (m *Metrics) IncInsert(outcome string) {
	if m == nil {
		return
	}
	m.inserts.WithLabelValues(outcome).Inc()
}

// IncQuery counts a query; hit reports whether any candidate matched.
func (m *Metrics) IncQuery(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queries.WithLabelValues(result).Inc()
}

// IncResolution counts a resolution by strategy.
func (m *Metrics) IncResolution(strategy string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(strategy).Inc()
}

// AddRemovals counts n removals for reason (expired, lru, removed, superseded).
func (m *Metrics) AddRemovals(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removals.WithLabelValues(reason).Add(float64(n))
}

// IncSnapshot counts a snapshot write; outcome is "ok" or "error".
func (m *Metrics) IncSnapshot(outcome string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(outcome).Inc()
}

// SetPatterns sets the current record count.
func (m *Metrics) SetPatterns(n int) {
	if m == nil {
		return
	}
	m.patterns.Set(float64(n))
}

// GetSummary returns a flat view of the counters, keyed by metric and label.
func (m *Metrics) GetSummary() map[string]float64 {
	summary := make(map[string]float64)
	if m == nil {
		return summary
	}
	families, err := m.registry.Gather()
	if err != nil {
		return summary
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "." + lp.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				summary[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				summary[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return summary
}
