package models

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds the attempts made for one capability call.
type RetryPolicy struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy is three attempts, backing off 1s then 2s, capped at 10s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, MinDelay: time.Second, MaxDelay: 10 * time.Second}

// Do calls fn until it succeeds, returns a permanent error, or the attempts run
// out. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := max(p.Attempts, 1)

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return i, nil
		}
		if i == attempts || !shouldRetry(err) {
			return i, err
		}

		timer := time.NewTimer(p.backoff(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return i, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return attempts, err
}

// backoff returns the delay after the given (1-based) failed attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.MinDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// shouldRetry rejects failures that another attempt cannot fix.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var typed *Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case KindAuthentication, KindModelNotFound, KindContextTooLong:
			return false
		}
	}
	return true
}
