package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/provider"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		return provider.Permanent(errors.New("no such AMI"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_TransientEventuallySucceeds(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return provider.Transient(errors.New("throttled"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustionEscalatesToPermanent(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		calls++
		return provider.Transient(errors.New("throttled"))
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
	assert.Equal(t, provider.ClassPermanent, provider.ClassOf(err))
	assert.Contains(t, err.Error(), "max retries")
}

func TestRetryWithBackoff_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, &RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, func() error {
		calls++
		cancel()
		return provider.Transient(errors.New("throttled"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelay_Bounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt, time.Second, 30*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}
