// Package resilience provides retry and circuit-breaker helpers for the
// operations that poll freshly started services and probe HTTP endpoints.
package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOption configures RetryWithBackoff.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxElapsed   time.Duration
	maxRetries   uint64
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	onRetry      func(err error, next time.Duration)
	classifier   func(error) bool
}

// WithMaxElapsed bounds the total time spent retrying.
func WithMaxElapsed(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.maxElapsed = d }
}

// WithMaxRetries bounds the number of retry attempts.
func WithMaxRetries(n uint64) RetryOption {
	return func(c *retryConfig) { c.maxRetries = n }
}

// WithInitialDelay sets the first retry delay.
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.initialDelay = d }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.maxDelay = d }
}

// WithOnRetry installs a callback invoked before each retry sleep.
func WithOnRetry(fn func(err error, next time.Duration)) RetryOption {
	return func(c *retryConfig) { c.onRetry = fn }
}

// WithClassifier decides whether an error is worth retrying. Returning
// false makes the error permanent.
func WithClassifier(fn func(error) bool) RetryOption {
	return func(c *retryConfig) { c.classifier = fn }
}

// RetryWithBackoff runs operation with exponential backoff and jitter
// until it succeeds, the classifier marks an error permanent, or the
// elapsed/retry budget runs out.
func RetryWithBackoff(ctx context.Context, operation func() error, opts ...RetryOption) error {
	cfg := &retryConfig{
		maxElapsed:   2 * time.Minute,
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		classifier:   DefaultClassifier,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.MaxInterval = cfg.maxDelay
	b.MaxElapsedTime = cfg.maxElapsed
	b.Multiplier = cfg.multiplier
	b.RandomizationFactor = 0.1

	var bo backoff.BackOff = b
	if cfg.maxRetries > 0 {
		bo = backoff.WithMaxRetries(b, cfg.maxRetries)
	}
	bo = backoff.WithContext(bo, ctx)

	wrapped := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if cfg.classifier != nil && !cfg.classifier(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if cfg.onRetry != nil {
		return backoff.RetryNotify(wrapped, bo, cfg.onRetry)
	}
	return backoff.Retry(wrapped, bo)
}

// DefaultClassifier treats network trouble as transient and everything
// context-related as permanent.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Permanent marks err as not retryable for RetryWithBackoff.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
