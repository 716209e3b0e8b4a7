// Package backoff holds the retry policy used around outbound classification
// calls.
package backoff

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy decides how often and how long to retry a failing call.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// Backoff returns the wait after failed attempt number attempt (1-based).
	Backoff func(attempt int, err error) time.Duration
	// Retryable reports whether err is worth another attempt.
	Retryable func(err error) bool
	// Sleep performs the wait. Tests swap in a fake clock.
	Sleep SleepFunc
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// noWait retries immediately.
func noWait(int, error) time.Duration { return 0 }

// Exponential returns base * 2^attempt.
func Exponential(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << uint(attempt)
}

// SleepContext waits for d on the wall clock.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotCanceled treats every error except context cancellation as retryable.
func NotCanceled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. fn receives the 1-based attempt number. The last
// error is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = noWait
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = NotCanceled
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	attempt := 0
	return retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			attempt++
			return fn(attempt)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && retryable(err)
		}),
		// The wait happens inside DelayType so the injected sleeper owns the
		// clock. retry-go then sees a zero delay.
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			wait := backoff(int(n)+1, err)
			if p.OnRetry != nil {
				p.OnRetry(int(n)+1, err, wait)
			}
			_ = sleep(ctx, wait)
			return 0
		}),
	)
}
