package health

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for origin health tracking.
var (
	originOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncproxy_origin_online",
		Help: "Whether the origin is considered reachable (1) or offline (0)",
	})

	originProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncproxy_origin_probes_total",
		Help: "Total origin health probes by result",
	}, []string{"result"}) // "ok", "failed"

	connectivityRegainedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncproxy_connectivity_regained_total",
		Help: "Total offline-to-online transitions observed",
	})
)

// Tracker monitors origin connectivity and records state in Redis.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates an origin health tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current connectivity state from Redis.
// Returns a default online state if no data exists yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	failures, err := t.redis.Get(ctx, RedisKeyConsecutiveFailures).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get consecutive failures: %w", err)
	}
	if err == redis.Nil {
		// No probe has run yet: assume reachable until proven otherwise.
		return &State{
			ConsecutiveFailures: 0,
			Online:              true,
			LastCheck:           time.Now(),
		}, nil
	}

	lastCheckUnix, err := t.redis.Get(ctx, RedisKeyLastCheck).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last check: %w", err)
	}

	state := &State{
		ConsecutiveFailures: failures,
		LastCheck:           time.Unix(lastCheckUnix, 0),
	}
	state.UpdateOnline()

	return state, nil
}

// RecordSuccess records a successful probe. It returns true when this probe
// regained connectivity (the previous state was offline), which is the
// caller's cue to trigger a queue drain.
func (t *Tracker) RecordSuccess(ctx context.Context) (regained bool, err error) {
	prev, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if err := t.store(ctx, 0); err != nil {
		return false, err
	}

	originProbesTotal.WithLabelValues("ok").Inc()
	originOnline.Set(1)

	if !prev.Online {
		connectivityRegainedTotal.Inc()
		t.logger.Info().
			Int("previous_failures", prev.ConsecutiveFailures).
			Msg("Origin connectivity regained")
		return true, nil
	}

	return false, nil
}

// RecordFailure records a failed probe and returns the updated state.
func (t *Tracker) RecordFailure(ctx context.Context) (*State, error) {
	prev, err := t.GetState(ctx)
	if err != nil {
		return nil, err
	}

	failures := prev.ConsecutiveFailures + 1
	if err := t.store(ctx, failures); err != nil {
		return nil, err
	}

	state := &State{
		ConsecutiveFailures: failures,
		LastCheck:           time.Now(),
	}
	state.UpdateOnline()

	originProbesTotal.WithLabelValues("failed").Inc()
	if !state.Online {
		originOnline.Set(0)
	}

	if prev.Online && !state.Online {
		t.logger.Warn().
			Int("consecutive_failures", failures).
			Msg("Origin considered offline")
	}

	return state, nil
}

// IsOnline reports the current shared connectivity view.
// Errors degrade to "online": when health state is unknowable, the read and
// write paths should still try the network first.
func (t *Tracker) IsOnline(ctx context.Context) bool {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Health state unavailable, assuming online")
		return true
	}
	return state.Online
}

// store persists the failure run atomically.
func (t *Tracker) store(ctx context.Context, failures int) error {
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyConsecutiveFailures, failures, 0)
	pipe.Set(ctx, RedisKeyLastCheck, time.Now().Unix(), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store health state in redis: %w", err)
	}
	return nil
}
