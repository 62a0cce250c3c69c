package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0

	out, attempts := Do(context.Background(), Policy{MaxRetries: 3}, func(ctx context.Context, attempt int) Outcome {
		calls++
		return Outcome{Status: 200}
	})

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestDo_NeverExceedsRetryBound(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3, 5} {
		calls := 0

		_, attempts := Do(context.Background(), Policy{MaxRetries: maxRetries}, func(ctx context.Context, attempt int) Outcome {
			calls++
			return Outcome{Status: 503, Err: errors.New("unavailable")}
		})

		if calls != maxRetries+1 {
			t.Errorf("max_retries=%d: expected %d attempts, got %d", maxRetries, maxRetries+1, calls)
		}
		if attempts != calls {
			t.Errorf("max_retries=%d: attempts=%d does not match calls=%d", maxRetries, attempts, calls)
		}
	}
}

func TestDo_RecoversAfterTransientFailure(t *testing.T) {
	calls := 0

	out, attempts := Do(context.Background(), Policy{MaxRetries: 3}, func(ctx context.Context, attempt int) Outcome {
		calls++
		if calls < 3 {
			return Outcome{Status: 500, Err: errors.New("server error")}
		}
		return Outcome{Status: 200}
	})

	if out.Err != nil {
		t.Fatalf("expected eventual success, got %v", out.Err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_BlockedCountsAsFailure(t *testing.T) {
	calls := 0

	out, _ := Do(context.Background(), Policy{MaxRetries: 2}, func(ctx context.Context, attempt int) Outcome {
		calls++
		return Outcome{Status: 200, Blocked: true}
	})

	if calls != 3 {
		t.Errorf("blocked responses must be retried, got %d attempts", calls)
	}
	if !out.Blocked {
		t.Error("final outcome must keep the blocked flag")
	}
}

func TestDo_RetryOnMakesFailureTerminal(t *testing.T) {
	calls := 0

	p := Policy{
		MaxRetries: 5,
		RetryOn: func(o Outcome) bool {
			return o.Status >= 500
		},
	}

	out, attempts := Do(context.Background(), p, func(ctx context.Context, attempt int) Outcome {
		calls++
		return Outcome{Status: 404, Err: errors.New("not found")}
	})

	if calls != 1 || attempts != 1 {
		t.Errorf("non-retryable failure must be terminal, got %d attempts", calls)
	}
	if out.Status != 404 {
		t.Errorf("expected last outcome preserved, got status %d", out.Status)
	}
}

func TestDo_ContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{MaxRetries: 3, BaseDelay: time.Hour}

	out, attempts := Do(ctx, p, func(ctx context.Context, attempt int) Outcome {
		cancel()
		return Outcome{Status: 500, Err: errors.New("server error")}
	})

	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", out.Err)
	}
}

func TestDelay_GrowsExponentially(t *testing.T) {
	p := Policy{BaseDelay: time.Second}

	if d := p.delay(0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %s", d)
	}
	if d := p.delay(2); d != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %s", d)
	}
}

func TestDelay_JitterStaysInRange(t *testing.T) {
	p := Policy{BaseDelay: time.Second, JitterMin: time.Second, JitterMax: 3 * time.Second}

	for i := 0; i < 100; i++ {
		d := p.delay(0)
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("delay %s outside [2s, 4s]", d)
		}
	}
}
