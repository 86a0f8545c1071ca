// Package metrics defines the Prometheus collectors exposed on
// /metrics. Collectors are package-level and registered at init so
// every component can record without plumbing a registry through.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SyncRuns counts sync executions by mode and outcome status.
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by mode and status.",
		},
		[]string{"mode", "status"},
	)

	// SyncRecords counts records processed by database and result.
	SyncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Records processed by database and result.",
		},
		[]string{"database", "result"},
	)

	// SearchDuration tracks end-to-end search latency per persona.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"persona"},
	)

	// ProviderInvocations counts model calls by provider, model and result.
	ProviderInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "provider",
			Name:      "invocations_total",
			Help:      "Model invocations by provider, model and result.",
		},
		[]string{"provider", "model", "result"},
	)

	// CacheHitRate reports the search cache hit rate.
	CacheHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "cache",
			Name:      "hit_rate",
			Help:      "Search cache hit rate since start.",
		},
	)

	// CacheSize reports the current number of cached entries.
	CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current cached entry count.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SyncRuns,
		SyncRecords,
		SearchDuration,
		ProviderInvocations,
		CacheHitRate,
		CacheSize,
	)
}
