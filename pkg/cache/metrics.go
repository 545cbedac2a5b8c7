package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_cache_hits_total",
			Help: "Total number of cache tier hits",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks cache misses by tier.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_cache_misses_total",
			Help: "Total number of cache tier misses",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "purge"
	)

	// CacheWriteBytes tracks bytes written to cache tiers.
	CacheWriteBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_cache_write_bytes_total",
			Help: "Total bytes written to cache tiers",
		},
		[]string{"tier"},
	)

	// TiersPurged tracks stale tiers removed during activation.
	TiersPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncproxy_tiers_purged_total",
			Help: "Total number of stale cache tiers purged",
		},
	)
)
