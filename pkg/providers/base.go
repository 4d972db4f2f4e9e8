package providers

import (
	"context"
	"errors"
	"time"

	"github.com/MaestroError/laragent/internal/backoff"
)

// RetryConfig controls BaseDriver.Retry's backoff policy.
type RetryConfig struct {
	MaxAttempts int
	Policy      backoff.BackoffPolicy
}

// DefaultRetryConfig is a conservative default: three attempts,
// exponential backoff starting at 500ms with 20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Policy: backoff.ConservativePolicy()}
}

// BaseDriver holds the retry policy shared by every concrete family driver.
// Embedding it gives each driver a Retry method without duplicating the
// backoff loop four times.
type BaseDriver struct {
	Retry RetryConfig
}

// NewBaseDriver builds a BaseDriver with cfg, or DefaultRetryConfig if cfg
// is the zero value.
func NewBaseDriver(cfg RetryConfig) BaseDriver {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return BaseDriver{Retry: cfg}
}

// WithRetry runs fn, retrying on a *Error that reports Retryable(), up to
// MaxAttempts times with exponential backoff and jitter between attempts.
// It never retries past a caller-cancelled context, and it never retries an
// error that ShouldFailover, since the caller's fallback cursor should
// handle that one instead of burning attempts against the same provider.
func (b BaseDriver) WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.Retry.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var pErr *Error
		if !asProviderError(lastErr, &pErr) || !pErr.Retryable() || pErr.ShouldFailover() {
			return lastErr
		}
		if attempt == b.Retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.ComputeBackoff(b.Retry.Policy, attempt)):
		}
	}
	return lastErr
}

func asProviderError(err error, target **Error) bool {
	return errors.As(err, target)
}
