package ratelimit

import (
	"testing"
	"time"
)

func TestBackoffState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *BackoffState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &BackoffState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &BackoffState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &BackoffState{LastUpdate: time.Now().Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBackoffState_Blocked(t *testing.T) {
	tests := []struct {
		name         string
		retryAt      time.Time
		wantBlocked  bool
		wantThrottle bool
	}{
		{
			name:         "no deadline",
			retryAt:      time.Time{},
			wantBlocked:  false,
			wantThrottle: false,
		},
		{
			name:         "deadline passed",
			retryAt:      time.Now().Add(-time.Second),
			wantBlocked:  false,
			wantThrottle: false,
		},
		{
			name:         "short deadline",
			retryAt:      time.Now().Add(2 * time.Second),
			wantBlocked:  true,
			wantThrottle: true,
		},
		{
			name:         "long deadline",
			retryAt:      time.Now().Add(time.Minute),
			wantBlocked:  true,
			wantThrottle: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &BackoffState{RetryAt: tt.retryAt}
			if got := state.Blocked(); got != tt.wantBlocked {
				t.Errorf("Blocked() = %v, want %v", got, tt.wantBlocked)
			}
			if got := state.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
		})
	}
}

func TestBackoffState_TimeUntilReset(t *testing.T) {
	state := &BackoffState{RetryAt: time.Now().Add(30 * time.Second)}
	got := state.TimeUntilReset()
	if got < 29*time.Second || got > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want ~30s", got)
	}

	past := &BackoffState{RetryAt: time.Now().Add(-time.Hour)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() for past deadline = %v, want 0", got)
	}

	zero := &BackoffState{}
	if got := zero.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() for zero state = %v, want 0", got)
	}
}
