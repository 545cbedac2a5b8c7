package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of pending mutations.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncproxy_queue_depth",
			Help: "Number of pending queued mutations",
		},
	)

	// Enqueued tracks mutations accepted into the queue.
	Enqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncproxy_queue_enqueued_total",
			Help: "Total mutations enqueued",
		},
	)

	// DrainOutcomes tracks per-entry drain attempt outcomes.
	DrainOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncproxy_queue_drain_outcomes_total",
			Help: "Total drain attempt outcomes per queued mutation",
		},
		[]string{"outcome"}, // "delivered", "rejected", "retried", "dead_lettered"
	)

	// DrainPasses tracks completed drain passes.
	DrainPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncproxy_queue_drain_passes_total",
			Help: "Total completed drain passes",
		},
	)

	// DrainCoalesced tracks drain triggers coalesced into a no-op because a
	// pass was already in flight.
	DrainCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncproxy_queue_drain_coalesced_total",
			Help: "Total drain triggers coalesced while a pass was in flight",
		},
	)
)
