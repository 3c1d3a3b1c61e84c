// Package retry provides exponential backoff for transient failures.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; +/- jitter to prevent thundering herd
}

// DefaultConfig returns defaults suited to warehouse and LLM calls:
// 3 retries starting at 250ms, doubling, capped at 10s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RetryableError lets errors declare their own retryability without this
// package importing them.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err should be retried. Errors that do not
// implement RetryableError are treated as retryable.
func IsRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return true
}

// Do executes fn with exponential backoff, stopping early on permanent
// errors and on context cancellation.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if !IsRetryable(err) {
				return err
			}
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(applyJitter(delay, cfg.JitterFactor)):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}
