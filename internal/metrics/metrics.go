// Package metrics holds the Prometheus collectors for pipeline runs.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	StageDuration  *prometheus.HistogramVec
	ExternalCalls  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	OperatorsFound prometheus.Counter
	LeadsQualified *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	RunCostUSD     prometheus.Gauge
	RunErrors      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leads_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"stage", "status"}),
		ExternalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_external_calls_total",
			Help: "Calls to external services by outcome",
		}, []string{"service", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leads_registry_fetch_duration_seconds",
			Help:    "Latency of registry page fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"label", "outcome"}),
		OperatorsFound: f.NewCounter(prometheus.CounterOpts{
			Name: "leads_operators_found_total",
			Help: "Multi-location operators persisted",
		}),
		LeadsQualified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_qualified_total",
			Help: "Scored leads that cleared the qualification threshold",
		}, []string{"layer"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_location_cache_lookups_total",
			Help: "Location-count cache lookups by result",
		}, []string{"result"}),
		RunCostUSD: f.NewGauge(prometheus.GaugeOpts{
			Name: "leads_last_run_cost_usd",
			Help: "Estimated cost of the most recent pipeline run",
		}),
		RunErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "leads_run_errors_total",
			Help: "Errors recorded in run history",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStage records a finished pipeline stage.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveCall counts one external call.
func (m *Metrics) ObserveCall(service string, err error) {
	if m == nil {
		return
	}
	m.ExternalCalls.WithLabelValues(service, outcome(err)).Inc()
}

// ObserveFetch records a registry fetch. It matches the fetcher's
// observation hook.
func (m *Metrics) ObserveFetch(label string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(label, outcome(err)).Observe(d.Seconds())
}

// AddOperators counts persisted operators.
func (m *Metrics) AddOperators(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OperatorsFound.Add(float64(n))
}

// AddQualified counts qualified leads for layer.
func (m *Metrics) AddQualified(layer string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LeadsQualified.WithLabelValues(layer).Add(float64(n))
}

// CacheResult counts a cache hit or miss.
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordRun sets run-level gauges and counters.
func (m *Metrics) RecordRun(costUSD float64, errors int) {
	if m == nil {
		return
	}
	m.RunCostUSD.Set(costUSD)
	if errors > 0 {
		m.RunErrors.Add(float64(errors))
	}
}
