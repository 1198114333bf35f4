package core

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryMaxAttempts    = 3
	defaultRetryInitialBackoff = 500 * time.Millisecond
	defaultRetryMaxBackoff     = 10 * time.Second
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRetryInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRetryMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// FixedBackoff waits the same delay before every retry.
type FixedBackoff time.Duration

func (b FixedBackoff) NextDelay(int) time.Duration {
	return time.Duration(b)
}

// RetryPolicy retries transient failures a bounded number of times. A provider
// supplied Retry-After hint wins over the scheduler delay, capped by MaxHint.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffScheduler
	MaxHint     time.Duration
	Wait        func(ctx context.Context, delay time.Duration) error
	OnRetry     func(attempt int, delay time.Duration, err error)
}

func NewRetryPolicy(maxAttempts int, initial time.Duration, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoffScheduler{Initial: initial, Max: max},
		MaxHint:     max,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempt
// budget is spent. It reports the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRetryMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if attempt == maxAttempts || !IsTransient(err) {
			return attempt, err
		}

		delay := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		wait := p.Wait
		if wait == nil {
			wait = waitWithContext
		}
		if waitErr := wait(ctx, delay); waitErr != nil {
			return attempt, waitErr
		}
	}
	return maxAttempts, lastErr
}

func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	if hint, ok := RetryAfterHint(err); ok {
		if p.MaxHint > 0 && hint > p.MaxHint {
			return p.MaxHint
		}
		return hint
	}
	if p.Backoff == nil {
		return defaultRetryInitialBackoff
	}
	return p.Backoff.NextDelay(attempt)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func ParseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}
