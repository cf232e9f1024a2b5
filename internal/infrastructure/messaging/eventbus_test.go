package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

var actor = shared.Actor{UserID: "doctor-1", Role: shared.RoleDoctor}

func archived(caseID string, session int) shared.SessionArchivedEvent {
	return shared.SessionArchivedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventSessionArchived, caseID, actor),
		SessionNumber: session,
		Outcome:       "continued",
	}
}

func TestPublish_SyncDeliversInOrder(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultConfig())
	var got []string

	require.NoError(t, bus.Subscribe(shared.EventSessionArchived, func(_ context.Context, e shared.Event) error {
		got = append(got, "typed:"+e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, e shared.Event) error {
		got = append(got, "all:"+string(e.EventType()))
		return nil
	}))

	opened := shared.CaseOpenedEvent{BaseEvent: shared.NewBaseEvent(shared.EventCaseOpened, "case-1", actor)}
	require.NoError(t, bus.Publish(context.Background(), archived("case-1", 1), nil, opened))

	assert.Equal(t, []string{
		"typed:case-1",
		"all:" + string(shared.EventSessionArchived),
		"all:" + string(shared.EventCaseOpened),
	}, got)
	assert.Equal(t, MetricsSnapshot{Published: 2, Handled: 3}, bus.Metrics())
}

func TestPublish_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultConfig())
	var after atomic.Int32

	require.NoError(t, bus.Subscribe(shared.EventSessionArchived, func(context.Context, shared.Event) error {
		panic("handler bug")
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionArchived, func(context.Context, shared.Event) error {
		return errors.New("cache down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionArchived, func(context.Context, shared.Event) error {
		after.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), archived("case-1", 1)))
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int64(2), bus.Metrics().Failed)
}

func TestPublish_HandlerTimeout(t *testing.T) {
	bus := NewInMemoryEventBus(Config{HandlerTimeout: 10 * time.Millisecond})
	var deadline atomic.Bool
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, _ shared.Event) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}))

	require.NoError(t, bus.Publish(context.Background(), archived("case-1", 1)))
	assert.True(t, deadline.Load())
	assert.Equal(t, int64(1), bus.Metrics().Failed)
}

func TestAsyncMode_DeliversOnWorkerPool(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 2})
	release := make(chan struct{})
	var mu sync.Mutex
	sessions := map[int]bool{}
	require.NoError(t, bus.Subscribe(shared.EventSessionArchived, func(_ context.Context, e shared.Event) error {
		<-release
		mu.Lock()
		sessions[e.(shared.SessionArchivedEvent).SessionNumber] = true
		mu.Unlock()
		return nil
	}))

	for i := 1; i <= 4; i++ {
		require.NoError(t, bus.Publish(context.Background(), archived("case-1", i)))
	}
	// Publish returned while every handler is still blocked.
	mu.Lock()
	assert.Empty(t, sessions)
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sessions) == 4
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
	assert.Equal(t, int64(4), bus.Metrics().Handled)
}

func TestClosedBusRejectsWork(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	assert.ErrorIs(t, bus.Publish(context.Background(), archived("case-1", 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventCaseOpened, func(context.Context, shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.SubscribeAll(nil))
}
