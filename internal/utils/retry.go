package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetryExhausted is returned when the retry budget ran out without a
// successful attempt.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// Retry is a bounded fixed-interval retry policy. Total wait time is
// deterministic: Attempts * Interval.
type Retry struct {
	Attempts int
	Interval time.Duration
}

/**
 * Run op until it reports done or the budget is exhausted
 * @param {context.Context} ctx - Cancels the wait between attempts
 * @param {func} op - Attempt; returns done=true to stop successfully
 * @returns {error} nil on success, ErrRetryExhausted (wrapping the last
 *                  attempt error, if any) when the budget ran out
 * @description
 * - Waits Interval before every attempt, so a never-succeeding op returns
 *   after exactly Attempts*Interval
 * - Never blocks indefinitely
 */
func (r Retry) Do(ctx context.Context, op func(ctx context.Context) (bool, error)) error {
	var lastErr error
	for i := 0; i < r.Attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Interval):
		}
		done, err := op(ctx)
		if done {
			return nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, r.Attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrRetryExhausted, r.Attempts)
}
