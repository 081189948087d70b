package http

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	if got := rl.Limit(); got != DefaultRateLimiterConfig().RPS {
		t.Errorf("Limit() = %v, want %v", got, DefaultRateLimiterConfig().RPS)
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 20, Burst: 1})
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second request took %v, want ~50ms", elapsed)
	}
}

func TestRateLimiterContextCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 0.5, Burst: 1})

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait with canceled context should fail")
	}
}

func TestRecordRateLimitErrorReducesRate(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 8, Burst: 1, EnableDynamicBackoff: true})

	tests := []struct {
		wantRPS     float64
		wantBackoff time.Duration
	}{
		{6, 1 * time.Second},
		{4, 2 * time.Second},
		{2, 4 * time.Second},
		{2, 8 * time.Second},
	}

	for i, tt := range tests {
		backoff := rl.RecordRateLimitError(0)
		if backoff != tt.wantBackoff {
			t.Errorf("error %d: backoff = %v, want %v", i+1, backoff, tt.wantBackoff)
		}
		if got := rl.Limit(); got != tt.wantRPS {
			t.Errorf("error %d: rate = %v, want %v", i+1, got, tt.wantRPS)
		}
	}
}

func TestRecordRateLimitErrorHonorsRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 4, EnableDynamicBackoff: true})

	if got := rl.RecordRateLimitError(10 * time.Second); got != 10*time.Second {
		t.Errorf("backoff = %v, want 10s", got)
	}
}

func TestRecordRateLimitErrorWithoutDynamicBackoff(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 4})

	if got := rl.RecordRateLimitError(0); got != InitialBackoff {
		t.Errorf("backoff = %v, want %v", got, InitialBackoff)
	}
	if rl.GetBackoffState() != nil {
		t.Error("no backoff state should be kept without dynamic backoff")
	}
	if rl.Limit() != 4 {
		t.Errorf("rate changed to %v", rl.Limit())
	}
}

func TestRecordSuccessRecovers(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 8, EnableDynamicBackoff: true})

	rl.RecordRateLimitError(0)
	rl.RecordSuccess()

	state := rl.GetBackoffState()
	if state == nil {
		t.Fatal("backoff state should persist until cooldown")
	}
	if state.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", state.ConsecutiveErrors)
	}
	if rl.Limit() != 6 {
		t.Errorf("rate = %v, want 6 (75%% is above the 50%% recovery floor)", rl.Limit())
	}
}

func TestWaitForBackoffCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 8, EnableDynamicBackoff: true})
	rl.RecordRateLimitError(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.WaitForBackoff(ctx); err == nil {
		t.Error("WaitForBackoff should return the context error")
	}
}

func TestNilRateLimiter(t *testing.T) {
	var rl *RateLimiter
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait() = %v", err)
	}
	rl.RecordSuccess()
	if rl.GetBackoffState() != nil {
		t.Error("nil limiter should have no backoff state")
	}
}
