// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts uploads by result: parsed, reused, rejected
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acp_uploads_total",
		Help: "Uploads by result",
	}, []string{"result"})

	// UploadRows counts parsed rows by outcome: accepted, rejected
	UploadRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acp_upload_rows_total",
		Help: "Parsed CSV rows by outcome",
	}, []string{"outcome"})

	// CacheEntries tracks the number of datasets held in memory
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acp_cache_entries",
		Help: "Datasets currently cached",
	})

	// CacheEvictions counts datasets dropped by the LRU bound
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acp_cache_evictions_total",
		Help: "Datasets evicted from the cache",
	})

	// CacheLookups counts dataset lookups by result: hit, miss
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acp_cache_lookups_total",
		Help: "Dataset lookups by result",
	}, []string{"result"})

	// QueryDuration tracks query latency per operation
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acp_query_duration_seconds",
		Help:    "Query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"operation"})
)

// ObserveQuery records the duration of an operation started at start
func ObserveQuery(operation string, start time.Time) {
	QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
