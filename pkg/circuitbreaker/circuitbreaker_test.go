package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("ml", WithFailureThreshold(2), WithTimeout(time.Minute))
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)

	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	notCounted := errors.New("client error")
	cb := New("ml", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, notCounted)
	}))

	_ = cb.Execute(context.Background(), func(context.Context) error { return notCounted })
	assert.Equal(t, StateClosed, cb.State())
}
