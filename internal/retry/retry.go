// Package retry runs a fallible fetch attempt under a bounded retry policy
// with exponential backoff and jitter.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Outcome classifies a single attempt.
type Outcome struct {
	Status  int
	Blocked bool
	Err     error
}

// Policy bounds the retry loop. A zero RetryOn retries every failed attempt.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	BaseDelay  time.Duration
	JitterMin  time.Duration
	JitterMax  time.Duration
	// RetryOn decides whether a failed attempt is worth repeating. Returning
	// false makes the failure terminal immediately.
	RetryOn func(o Outcome) bool
}

// AttemptFunc performs one fetch attempt. A nil error with Blocked false is a
// success and stops the loop.
type AttemptFunc func(ctx context.Context, attempt int) Outcome

// Do runs fn up to 1+MaxRetries times and returns the last outcome together
// with the number of attempts made. Context cancellation aborts the backoff
// sleep and returns the context error.
func Do(ctx context.Context, p Policy, fn AttemptFunc) (Outcome, int) {
	var last Outcome

	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attempts++
		last = fn(ctx, attempt)

		if last.Err == nil && !last.Blocked {
			return last, attempts
		}

		if p.RetryOn != nil && !p.RetryOn(last) {
			return last, attempts
		}

		if attempt == p.MaxRetries {
			break
		}

		if err := sleep(ctx, p.delay(attempt)); err != nil {
			last.Err = err
			return last, attempts
		}
	}

	return last, attempts
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay * (1 << attempt)
	if p.JitterMax > p.JitterMin {
		d += p.JitterMin + time.Duration(rand.Int63n(int64(p.JitterMax-p.JitterMin)))
	} else {
		d += p.JitterMin
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
