package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_FirstTrySucceeds(t *testing.T) {
	calls := 0
	v, err := Attempt(context.Background(), 3, func(context.Context, int) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestAttempt_RetriesUntilSuccess(t *testing.T) {
	var seen []int
	v, err := Attempt(context.Background(), 8, func(_ context.Context, n int) (int, error) {
		seen = append(seen, n)
		if n < 3 {
			return 0, fmt.Errorf("candidate %d taken: %w", n, ErrAgain)
		}
		return n * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 30, v)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestAttempt_Exhausted(t *testing.T) {
	calls := 0
	_, err := Attempt(context.Background(), 8, func(context.Context, int) (int, error) {
		calls++
		return 0, ErrAgain
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrAgain)
	assert.Equal(t, 8, calls)
}

func TestAttempt_StopsOnFatalError(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	_, err := Attempt(context.Background(), 5, func(context.Context, int) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestAttempt_InvalidBound(t *testing.T) {
	_, err := Attempt(context.Background(), 0, func(context.Context, int) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	require.Error(t, err)
}

func TestAttempt_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Attempt(ctx, 5, func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 0, ErrAgain
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
