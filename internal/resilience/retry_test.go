package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	v, err := DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastConfig(2), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(fmt.Errorf("attempt %d", calls), 429)
	})
	require.Error(t, err)
	assert.Equal(t, "attempt 2", err.Error())
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastConfig(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	calls := 0
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(error) bool { return true }
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetries(t *testing.T) {
	assert.Equal(t, 3, WithRetries(2).MaxAttempts)
	assert.Equal(t, 1, WithRetries(-1).MaxAttempts)
}

func TestBackoff_CappedAndNonNegative(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second, Multiplier: 10})
	cfg.JitterFraction = 0
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 2*time.Second, backoff(3, cfg))
}

func TestDoVal_HonoursRetryAfter(t *testing.T) {
	cfg := fastConfig(2)
	cfg.MaxBackoff = 40 * time.Millisecond

	calls := 0
	start := time.Now()
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &TransientError{Err: errors.New("rate limited"), StatusCode: 429, RetryAfter: time.Minute}
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}
