package gstsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RetryConfig bounds how hard a single capture tries to open the device.
// The delays are short because a retry stalls the visible countdown.
type RetryConfig struct {
	MaxRetries    int           // attempts after the first (default: 2)
	RetryDelay    time.Duration // initial delay (default: 200ms)
	MaxRetryDelay time.Duration // delay cap (default: 1s)
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		RetryDelay:    200 * time.Millisecond,
		MaxRetryDelay: 1 * time.Second,
	}
}

// RetryState tracks retries for one capture.
type RetryState struct {
	CurrentRetries int
	Retries        *uint32 // shared atomic counter of all retries
}

// AttemptFunc performs one capture attempt.
type AttemptFunc func(ctx context.Context) error

// RunWithRetry runs fn, retrying with exponential backoff while the failure
// looks transient. Permission and format errors are returned immediately.
func RunWithRetry(ctx context.Context, fn AttemptFunc, cfg RetryConfig, state *RetryState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var cerr *captureError
		if errors.As(err, &cerr) && !cerr.category.Retryable() {
			return err
		}

		state.CurrentRetries++
		if state.Retries != nil {
			atomic.AddUint32(state.Retries, 1)
		}

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(state.CurrentRetries, cfg)

		slog.Warn("gstsource: retrying capture",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
