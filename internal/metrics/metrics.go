// Package metrics holds the Prometheus collectors for the harvest pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FetchCalls        *prometheus.CounterVec
	BranchFailures    *prometheus.CounterVec
	HarvestDuration   prometheus.Histogram
	DocumentsUpserted *prometheus.CounterVec
	Migrations        *prometheus.CounterVec
	QueryFailures     prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FetchCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytharvest_fetch_calls_total",
			Help: "YouTube Data API calls, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	m.BranchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytharvest_branch_failures_total",
			Help: "Harvest branches dropped or degraded, by branch kind.",
		},
		[]string{"branch"},
	)

	m.HarvestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytharvest_harvest_duration_seconds",
			Help:    "Wall time of a full channel harvest.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	m.DocumentsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytharvest_documents_upserted_total",
			Help: "Channel documents written to the document store, by action.",
		},
		[]string{"action"},
	)

	m.Migrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytharvest_migrations_total",
			Help: "Relational migrations, by mode (insert/replace) and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	m.QueryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ytharvest_query_failures_total",
			Help: "Analysis queries that failed and returned no rows.",
		},
	)

	m.registry.MustRegister(
		m.FetchCalls,
		m.BranchFailures,
		m.HarvestDuration,
		m.DocumentsUpserted,
		m.Migrations,
		m.QueryFailures,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(op, outcome string) {
	if m == nil {
		return
	}
	m.FetchCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveBranchFailure(branch string) {
	if m == nil {
		return
	}
	m.BranchFailures.WithLabelValues(branch).Inc()
}

func (m *Metrics) ObserveHarvest(d time.Duration) {
	if m == nil {
		return
	}
	m.HarvestDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveUpsert(action string) {
	if m == nil {
		return
	}
	m.DocumentsUpserted.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveMigration(mode, outcome string) {
	if m == nil {
		return
	}
	m.Migrations.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveQueryFailure() {
	if m == nil {
		return
	}
	m.QueryFailures.Inc()
}
