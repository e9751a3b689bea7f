// Package retry provides bounded exponential backoff for calls to flaky
// backends: LLM endpoints and reconciliation databases. Only transient
// failures are retried; permanent errors return immediately.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the grown delay
	Multiplier   float64       // delay growth per retry
	JitterFactor float64       // fraction of each delay randomized, 0.0-1.0
}

// DefaultConfig suits both LLM completions and database connects.
// Two retries with 200ms initial delay, doubling to a 3s cap, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Do runs fn until it succeeds or the retry budget is spent. Non-transient
// errors and outer context expiry end the loop at once; the wait between
// attempts is cut short when ctx ends.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for calls that produce a value. On failure it returns
// the last attempt's value and error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		// A dead outer context ends the loop; a deadline that expired
		// inside one attempt does not.
		if ctx.Err() != nil || !IsTransient(lastErr) {
			return result, lastErr
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return result, lastErr
			}
		}
	}

	return result, lastErr
}

// transientPatterns match the connection, timeout, and throttling failures
// the engine's backends produce. Auth failures and bad SQL are permanent and
// must not match.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"service unavailable",
	"overloaded",
}

// IsTransient reports whether an error is worth retrying. Cancellation is
// never transient; an attempt that ran out its own deadline is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// applyJitter spreads a delay by +/- delay*factor.
func applyJitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return delay
	}
	jitter := float64(delay) * factor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}
