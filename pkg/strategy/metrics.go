package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OriginFetches tracks origin fetch attempts by outcome.
	OriginFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_origin_fetches_total",
			Help: "Total origin fetch attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "timeout"
	)

	// ServedFromCache tracks responses answered from a cache tier.
	ServedFromCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_served_from_cache_total",
			Help: "Total responses served from a cache tier",
		},
		[]string{"strategy"}, // "cache_first", "network_first"
	)

	// OfflineFallbacks tracks synthetic fallback responses (offline page,
	// empty image, offline error envelope).
	OfflineFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_offline_fallbacks_total",
			Help: "Total synthetic offline fallback responses",
		},
		[]string{"kind"}, // "navigation", "image", "asset", "api"
	)

	// FetchDuration tracks origin fetch duration.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncproxy_origin_fetch_duration_seconds",
			Help:    "Origin fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)
