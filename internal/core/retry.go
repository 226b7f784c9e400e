package core

import (
	"context"
	"time"
)

// Backoff returns the delay before retry number attempt (0 for the first retry).
type Backoff func(attempt int) time.Duration

func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(1<<attempt)
	}
}

func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// RetryPolicy is shared by every call site that talks to something flaky:
// page fetches, browser crawls, search queries and batch job calls.
type RetryPolicy struct {
	MaxRetries int
	Backoff    Backoff
	// Retryable defaults to IsRetryable.
	Retryable func(error) (bool, time.Duration)
	// Sleep defaults to a context-aware timer. Tests swap it to count waits.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: Exponential(time.Second)}
}

// Do calls fn until it succeeds, returns a non-retryable error, or has been
// retried MaxRetries times. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(time.Second)
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}
		ok, after := retryable(err)
		if !ok {
			return err
		}
		wait := backoff(attempt)
		if after > 0 {
			wait = after
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
