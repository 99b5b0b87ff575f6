package notion

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy keeps the per-class attempt counts but shrinks the waits.
func fastPolicy(class ErrorClass) RetryConfig {
	cfg := RetryConfigForErrorClass(class)
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 40 * time.Millisecond
	return cfg
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{"server error config", ErrorClassServer, 500 * time.Millisecond, 5 * time.Second, 3},
		{"rate limit config", ErrorClassRateLimit, 1 * time.Second, 30 * time.Second, 4},
		{"network error config", ErrorClassNetwork, 1 * time.Second, 10 * time.Second, 3},
		{"unknown error class uses default", "", 500 * time.Millisecond, 10 * time.Second, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestScaledPolicy(t *testing.T) {
	policy := scaledPolicy(5, 2*time.Millisecond)
	cfg := policy(ErrorClassServer)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 2*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 2ms", cfg.InitialBackoff)
	}

	defaults := scaledPolicy(0, 0)(ErrorClassRateLimit)
	if defaults != RetryConfigForErrorClass(ErrorClassRateLimit) {
		t.Errorf("zero overrides changed config: %+v", defaults)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	fn := func() error {
		callCount++
		return nil
	}

	err := retryWithBackoff(context.Background(), fastPolicy, fn, func(error) ErrorClass {
		return ErrorClassServer
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	fn := func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	start := time.Now()
	err := retryWithBackoff(context.Background(), fastPolicy, fn, func(error) ErrorClass {
		return ErrorClassServer
	})
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	// 10ms + 20ms, minus jitter
	if duration < 20*time.Millisecond {
		t.Errorf("Expected some backoff delay, got %v", duration)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	fn := func() error {
		callCount++
		return testErr
	}

	err := retryWithBackoff(context.Background(), fastPolicy, fn, func(error) ErrorClass { return ErrorClassServer })

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("client error")
	fn := func() error {
		callCount++
		return testErr
	}

	err := retryWithBackoff(context.Background(), fastPolicy, fn, func(error) ErrorClass { return ErrorClassClient })

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors (no retry attempted)")
	}
	if err != testErr {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return errors.New("error")
	}

	slow := func(class ErrorClass) RetryConfig {
		cfg := RetryConfigForErrorClass(class)
		cfg.InitialBackoff = time.Second
		return cfg
	}
	err := retryWithBackoff(ctx, slow, fn, func(error) ErrorClass { return ErrorClassServer })

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_RetryAfterHonoured(t *testing.T) {
	timestamps := []time.Time{}
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		if len(timestamps) == 1 {
			return &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 150 * time.Millisecond}
		}
		return nil
	}

	if err := retryWithBackoff(context.Background(), fastPolicy, fn, classifyError); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(timestamps) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(timestamps))
	}
	if delay := timestamps[1].Sub(timestamps[0]); delay < 150*time.Millisecond {
		t.Errorf("retry delay %v shorter than Retry-After 150ms", delay)
	}
}

func TestBackoffFor(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{6, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffFor(config, tt.attempt); got != tt.want {
			t.Errorf("backoffFor(attempt %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
