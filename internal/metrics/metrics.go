// Package metrics provides Prometheus metrics for the enrichment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCallsTotal tracks provider invocations by outcome
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderCallDuration tracks provider call latency in seconds
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "enrich",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// ProviderSkipsTotal tracks providers passed over without a call
	ProviderSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "provider",
			Name:      "skips_total",
			Help:      "Total number of providers skipped by reason",
		},
		[]string{"provider", "reason"},
	)

	// CacheLookupsTotal tracks cache lookups by result
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by result",
		},
		[]string{"result"},
	)

	// JobsTotal tracks finished jobs by terminal status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Total number of enrichment jobs by status",
		},
		[]string{"status"},
	)

	// FieldsTotal tracks field resolutions by status
	FieldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "jobs",
			Name:      "fields_total",
			Help:      "Total number of requested fields by resolution status",
		},
		[]string{"field", "status"},
	)

	// SpendUSDTotal tracks money charged by providers
	SpendUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "provider",
			Name:      "spend_usd_total",
			Help:      "Total provider spend in USD",
		},
		[]string{"provider"},
	)

	// CircuitTransitionsTotal tracks circuit breaker state changes
	CircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "circuit",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker transitions by target state",
		},
		[]string{"provider", "to"},
	)

	// CacheSweepDeletedTotal tracks expired cache rows removed by the sweeper
	CacheSweepDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "cache",
			Name:      "sweep_deleted_total",
			Help:      "Total number of expired cache entries removed",
		},
	)

	// AlertsTriggeredTotal tracks monitoring alerts by type
	AlertsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enrich",
			Subsystem: "monitor",
			Name:      "alerts_triggered_total",
			Help:      "Total number of monitoring alerts triggered by type",
		},
		[]string{"type"},
	)
)
