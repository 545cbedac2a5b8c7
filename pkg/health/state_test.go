package health

import (
	"testing"
	"time"
)

func TestUpdateOnline(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     bool
	}{
		{"no failures", 0, true},
		{"one failure still online", 1, true},
		{"at threshold offline", FailureThresholdOffline, false},
		{"past threshold offline", FailureThresholdOffline + 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{ConsecutiveFailures: tt.failures}
			s.UpdateOnline()
			if s.Online != tt.want {
				t.Errorf("Online = %v with %d failures, want %v", s.Online, tt.failures, tt.want)
			}
		})
	}
}

func TestIsStale(t *testing.T) {
	fresh := &State{LastCheck: time.Now()}
	if fresh.IsStale(time.Minute) {
		t.Error("fresh state reported stale")
	}

	old := &State{LastCheck: time.Now().Add(-2 * time.Minute)}
	if !old.IsStale(time.Minute) {
		t.Error("old state not reported stale")
	}
}
