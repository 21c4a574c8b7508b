package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsMidBudget(t *testing.T) {
	attempts := 0
	r := Retry{Attempts: 5, Interval: time.Millisecond}

	err := r.Do(context.Background(), func(ctx context.Context) (bool, error) {
		attempts++
		return attempts == 2, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustsAfterBoundedWait(t *testing.T) {
	attempts := 0
	r := Retry{Attempts: 3, Interval: 20 * time.Millisecond}
	start := time.Now()

	err := r.Do(context.Background(), func(ctx context.Context) (bool, error) {
		attempts++
		return false, errors.New("still down")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, 3, attempts)
	// Waits Interval before every attempt: total wait is Attempts*Interval.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry{Attempts: 3, Interval: time.Hour}

	err := r.Do(ctx, func(ctx context.Context) (bool, error) {
		t.Fatal("op must not run after cancellation")
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
