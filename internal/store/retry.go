package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onRetry      func(attempt int, err error)
}

// RetryOption configures RetryWithExponentialBackoff.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the total number of attempts, the first one included.
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the delay before the first retry; later retries double it.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

// WithRetryHook registers fn to observe each retried failure.
func WithRetryHook(fn func(attempt int, err error)) RetryOption {
	return func(c *retryConfig) error {
		c.onRetry = fn
		return nil
	}
}

// RetryWithExponentialBackoff runs fn until it succeeds, fails with an error
// other than ErrConflict, or the attempts are exhausted.
func RetryWithExponentialBackoff(ctx context.Context, fn func(ctx context.Context) error, options ...RetryOption) error {
	cfg := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrConflict) {
			return lastErr
		}
		if cfg.onRetry != nil && attempt < cfg.maxAttempts-1 {
			cfg.onRetry(attempt+1, lastErr)
		}
	}
	return lastErr
}

// TxConfig bounds every transaction opened by a Store.
type TxConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultTxConfig is used when a Store is built without explicit limits.
func DefaultTxConfig() TxConfig {
	return TxConfig{Timeout: 5 * time.Second, MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay}
}

// Run retries attempt on conflicts, giving each attempt its own cfg.Timeout
// deadline. Store implementations call it from WithinTx.
func Run(ctx context.Context, cfg TxConfig, attempt func(ctx context.Context) error) error {
	fn := attempt
	if cfg.Timeout > 0 {
		fn = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			return attempt(ctx)
		}
	}
	opts := []RetryOption{}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.BaseDelay > 0 {
		opts = append(opts, WithBaseDelay(cfg.BaseDelay))
	}
	return RetryWithExponentialBackoff(ctx, fn, opts...)
}
