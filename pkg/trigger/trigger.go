// Package trigger coordinates when the mutation queue drains: on
// connectivity regained, on a periodic cadence, and on explicit sync
// requests. Every trigger path is wrapped so a failing or panicking drain
// never escapes into the loop that fired it.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/plannerhq/syncproxy/pkg/health"
	"github.com/plannerhq/syncproxy/pkg/queue"
)

var syncTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "syncproxy_sync_triggers_total",
	Help: "Total queue drain triggers by reason",
}, []string{"reason"}) // "connectivity", "periodic", "manual"

// DrainFunc runs one full drain pass over the mutation queue.
type DrainFunc func(ctx context.Context) error

// ProbeFunc checks origin reachability, returning an error when unreachable.
type ProbeFunc func(ctx context.Context) error

// Coordinator listens for connectivity and timer events and invokes drains.
type Coordinator struct {
	drain         DrainFunc
	probe         ProbeFunc
	tracker       *health.Tracker
	probeInterval time.Duration
	syncInterval  time.Duration
	logger        zerolog.Logger
}

// New creates a sync trigger coordinator.
func New(drain DrainFunc, probe ProbeFunc, tracker *health.Tracker, probeInterval, syncInterval time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		drain:         drain,
		probe:         probe,
		tracker:       tracker,
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
		logger:        logger,
	}
}

// Run drives the probe and periodic-sync loops until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	probeTicker := time.NewTicker(c.probeInterval)
	defer probeTicker.Stop()

	syncTicker := time.NewTicker(c.syncInterval)
	defer syncTicker.Stop()

	c.logger.Info().
		Dur("probe_interval", c.probeInterval).
		Dur("sync_interval", c.syncInterval).
		Msg("Sync trigger coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Sync trigger coordinator stopped")
			return
		case <-probeTicker.C:
			c.runProbe(ctx)
		case <-syncTicker.C:
			c.TriggerSync(ctx, "periodic")
		}
	}
}

// runProbe checks the origin once and fires a drain on the
// offline-to-online transition.
func (c *Coordinator) runProbe(ctx context.Context) {
	if err := c.probe(ctx); err != nil {
		if _, recErr := c.tracker.RecordFailure(ctx); recErr != nil {
			c.logger.Warn().Err(recErr).Msg("Failed to record probe failure")
		}
		return
	}

	regained, err := c.tracker.RecordSuccess(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record probe success")
		return
	}

	if regained {
		c.TriggerSync(ctx, "connectivity")
	}
}

// TriggerSync invokes one drain pass for the given reason. It never returns
// an error and never panics: drains are best-effort and their failures are
// observed through logs and metrics only.
func (c *Coordinator) TriggerSync(ctx context.Context, reason string) {
	syncTriggersTotal.WithLabelValues(reason).Inc()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("reason", reason).
				Interface("panic", r).
				Msg("Drain panicked")
		}
	}()

	err := c.drain(ctx)
	switch {
	case err == nil:
		c.logger.Debug().Str("reason", reason).Msg("Drain pass completed")
	case errors.Is(err, queue.ErrDrainInFlight):
		// Coalesced: the running pass owns the queue.
	default:
		c.logger.Error().Err(err).Str("reason", reason).Msg("Drain pass failed")
	}
}
