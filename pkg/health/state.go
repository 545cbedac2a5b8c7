// Package health tracks origin connectivity. The tracker probes the origin
// on a fixed cadence and keeps its state in Redis, so every coordinator
// instance sharing the cache also shares one view of whether the origin is
// reachable. The offline-to-online transition it reports is what triggers a
// mutation queue drain.
package health

import (
	"time"
)

// Redis keys for origin health state storage. The online flag is derived
// from the failure count on read, not stored.
const (
	RedisKeyConsecutiveFailures = "syncproxy:health:consecutive_failures"
	RedisKeyLastCheck           = "syncproxy:health:last_check"
)

// FailureThresholdOffline is the number of consecutive probe failures after
// which the origin is considered offline.
const FailureThresholdOffline = 2

// State represents the current origin connectivity state.
// Shared across coordinator instances via Redis.
type State struct {
	// ConsecutiveFailures is the current run of failed probes.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Online reports whether the origin is considered reachable.
	Online bool `json:"online"`

	// LastCheck is when the state was last updated.
	LastCheck time.Time `json:"last_check"`
}

// IsStale returns true if the state is older than maxAge and should not be
// trusted without a fresh probe.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastCheck) > maxAge
}

// UpdateOnline recomputes the Online flag from the failure run.
func (s *State) UpdateOnline() {
	s.Online = s.ConsecutiveFailures < FailureThresholdOffline
}
