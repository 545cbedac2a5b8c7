package health

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestGetStateDefaultsToOnline(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !state.Online {
		t.Error("fresh state should default to online")
	}
	if state.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", state.ConsecutiveFailures)
	}
}

func TestFailuresCrossThreshold(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	state, err := tracker.RecordFailure(ctx)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !state.Online {
		t.Error("one failure should not mark the origin offline")
	}

	state, err = tracker.RecordFailure(ctx)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if state.Online {
		t.Errorf("origin still online after %d failures", state.ConsecutiveFailures)
	}
	if state.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", state.ConsecutiveFailures)
	}

	if tracker.IsOnline(ctx) {
		t.Error("IsOnline = true while origin is offline")
	}
}

func TestStoreWritesOnlyConsumedKeys(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if _, err := tracker.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	keys, err := client.Keys(ctx, "syncproxy:health:*").Result()
	if err != nil {
		t.Fatalf("list health keys: %v", err)
	}

	want := map[string]bool{
		RedisKeyConsecutiveFailures: true,
		RedisKeyLastCheck:           true,
	}
	if len(keys) != len(want) {
		t.Errorf("health keys = %v, want exactly %d keys GetState reads", keys, len(want))
	}
	for _, key := range keys {
		if !want[key] {
			t.Errorf("unexpected health key %q, nothing reads it", key)
		}
	}
}

func TestRecordSuccessWhileOnlineIsNotRegained(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	regained, err := tracker.RecordSuccess(context.Background())
	if err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if regained {
		t.Error("success while online reported regained connectivity")
	}
}

func TestRecordSuccessAfterOfflineRegains(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < FailureThresholdOffline; i++ {
		if _, err := tracker.RecordFailure(ctx); err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
	}
	if tracker.IsOnline(ctx) {
		t.Fatal("origin should be offline before the successful probe")
	}

	regained, err := tracker.RecordSuccess(ctx)
	if err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if !regained {
		t.Error("offline-to-online transition not reported as regained")
	}

	if !tracker.IsOnline(ctx) {
		t.Error("IsOnline = false after successful probe")
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after success, want 0", state.ConsecutiveFailures)
	}

	// A second success is business as usual, not another transition.
	regained, err = tracker.RecordSuccess(ctx)
	if err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if regained {
		t.Error("consecutive success reported regained connectivity")
	}
}
