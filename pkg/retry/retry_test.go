package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_RetriesOnlyRetryableErrors(t *testing.T) {
	r := New(WithMaxAttempts(4), WithInitialDelay(time.Millisecond), WithJitter(0))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("busy"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("bad request")
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ReturnsUnwrappedErrorAfterLastAttempt(t *testing.T) {
	r := New(WithMaxAttempts(2), WithInitialDelay(time.Millisecond))
	cause := errors.New("still down")

	err := r.Do(context.Background(), func(context.Context) error {
		return Retryable(cause)
	})
	assert.Same(t, cause, err)
	assert.False(t, IsRetryable(err))
}
