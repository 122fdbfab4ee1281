package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits per namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses tracks cache misses (absent or stale) per namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// CacheStaleServed tracks stale values served after a failed refresh
	CacheStaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_cache_stale_served_total",
			Help: "Total number of stale cache values served on fetch failure",
		},
		[]string{"namespace"},
	)

	// ProviderRequests tracks provider fetches by outcome
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_provider_requests_total",
			Help: "Total number of provider fetches",
		},
		[]string{"provider", "outcome"},
	)

	// RefreshKeys tracks refreshed keys by outcome per namespace
	RefreshKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_refresh_keys_total",
			Help: "Total number of keys touched by sharded refresh runs",
		},
		[]string{"namespace", "outcome"},
	)

	// RefreshDuration tracks sharded refresh run duration
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokend_refresh_duration_seconds",
			Help:    "Sharded refresh run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace"},
	)

	// TierSnapshotSource tracks which acquisition path produced the snapshot
	TierSnapshotSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_tier_snapshot_source_total",
			Help: "Total number of tier snapshots by acquisition source",
		},
		[]string{"source"},
	)

	// HTTPRequests tracks API requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokend_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)
)
