// Package resilience retries transient failures of outbound calls.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is an exponential backoff policy with jitter.
type RetryConfig struct {
	// MaxAttempts includes the first call; 1 means no retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by up to ±fraction.
	JitterFraction float64

	// ShouldRetry replaces IsTransient as the retry test.
	ShouldRetry func(err error) bool
	// OnRetry is called with the failed attempt number before sleeping.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is three attempts starting at half a second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// WithRetries is the default policy with n retries after the first call.
func WithRetries(n int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 1 + max(n, 0)
	return cfg
}

// Do runs fn under cfg. See DoVal.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal runs fn until it succeeds, returns a non-retryable error or the
// attempts run out. The last error is returned unchanged. A Retry-After
// carried by the error raises the wait for that attempt, capped at
// MaxBackoff. A done ctx ends the loop without another call.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		val T
		err error
	)
	for attempt := 1; ; attempt++ {
		if val, err = fn(ctx); err == nil {
			return val, nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !retryable(err) {
			return val, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		wait := max(backoff(attempt-1, cfg), min(retryAfter(err), cfg.MaxBackoff))
		if !sleep(ctx, wait) {
			return val, err
		}
	}
}

// sleep waits d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.JitterFraction = max(cfg.JitterFraction, 0)
	return cfg
}

// backoff is the delay after the given zero-based retry.
func backoff(retry int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(retry))
	d = min(d, float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(max(d, 0))
}

// RetryLogger logs each retry at Warn with the service and operation.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying after transient failure",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
