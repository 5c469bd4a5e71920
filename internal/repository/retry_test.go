package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{
		MaxAttempts:      4,
		InitialBackoffMs: 100,
		MaxBackoffMs:     1000,
	})

	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, time.Second, p.MaxBackoff)
	assert.False(t, p.Unlimited())
	assert.True(t, RetryPolicy{}.Unlimited())
}

func TestNextBackoff_Capped(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, p.nextBackoff(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, p.nextBackoff(200*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, p.nextBackoff(300*time.Millisecond))
	assert.Equal(t, time.Duration(0), p.nextBackoff(0))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{}, logger.NewNop(), "op", func(ctx context.Context) error {
		calls++
		if calls < 5 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestRetry_MaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3}, nil, "clone", func(ctx context.Context) error {
		calls++
		return errors.New("network down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "clone failed after 3 attempts")
	assert.Contains(t, err.Error(), "network down")
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{}, nil, "checkout", func(ctx context.Context) error {
		calls++
		return Permanent(ErrUnknownRevision)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{InitialBackoff: time.Hour}

	calls := 0
	err := Retry(ctx, p, nil, "clone", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "cancelled")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "boom")
}

func TestRetry_CancelledWhileRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := Retry(ctx, RetryPolicy{InitialBackoff: time.Second}, nil, "checkout C1", func(ctx context.Context) error {
		return errors.New("index.lock exists")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "checkout C1 cancelled after 1 attempts")
	assert.Contains(t, err.Error(), "index.lock exists")
}

func TestRetry_CancelledByAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, RetryPolicy{}, nil, "clone", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transfer interrupted")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, RetryPolicy{}, nil, "clone", func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
