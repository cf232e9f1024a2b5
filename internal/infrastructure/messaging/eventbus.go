// Package messaging delivers domain events to in-process subscribers after the
// owning transaction has committed.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ErrEventBusClosed is returned when publishing or subscribing after Close.
var ErrEventBusClosed = errors.New("messaging: event bus is closed")

// Handler processes one event. Handler errors are logged and never reach the publisher.
type Handler func(ctx context.Context, event shared.Event) error

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus implements shared.EventPublisher for a single instance.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]Handler
	allHandlers []Handler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// Config contains configuration for InMemoryEventBus.
type Config struct {
	// AsyncMode runs handlers on a bounded worker pool instead of the caller's goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	// HandlerTimeout bounds a single handler run. Zero means no limit.
	HandlerTimeout time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns synchronous delivery with a five second handler timeout.
func DefaultConfig() Config {
	return Config{WorkerPoolSize: 10, HandlerTimeout: 5 * time.Second}
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(cfg Config) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]Handler),
		asyncMode:  cfg.AsyncMode,
		workerPool: make(chan struct{}, cfg.WorkerPoolSize),
		logger:     cfg.Logger.With(logger.Component("eventbus")),
		metrics:    &EventBusMetrics{timeout: cfg.HandlerTimeout},
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, h Handler) error {
	if h == nil {
		return errors.New("messaging: handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], h)
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(h Handler) error {
	if h == nil {
		return errors.New("messaging: handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, h)
	return nil
}

// Publish delivers events in order. It returns an error only when the bus is closed.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.Event) error {
	for _, e := range events {
		if e == nil {
			continue
		}
		b.mu.RLock()
		if b.closed {
			b.mu.RUnlock()
			return ErrEventBusClosed
		}
		handlers := make([]Handler, 0, len(b.handlers[e.EventType()])+len(b.allHandlers))
		handlers = append(handlers, b.handlers[e.EventType()]...)
		handlers = append(handlers, b.allHandlers...)
		b.mu.RUnlock()

		b.metrics.published.Add(1)
		for _, h := range handlers {
			if b.asyncMode {
				b.executeAsync(context.WithoutCancel(ctx), e, h)
			} else {
				b.execute(ctx, e, h)
			}
		}
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(ctx context.Context, e shared.Event, h Handler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}
		b.execute(ctx, e, h)
	}()
}

// execute runs one handler with timeout and panic recovery.
func (b *InMemoryEventBus) execute(ctx context.Context, e shared.Event, h Handler) {
	if b.metrics.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.metrics.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler panic: %v", p)
			}
		}()
		return h(ctx, e)
	}()

	if err != nil {
		b.metrics.failed.Add(1)
		b.logger.Error("event handler failed",
			logger.String("event_type", string(e.EventType())),
			logger.CaseID(e.AggregateID()),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return
	}
	b.metrics.handled.Add(1)
}

// Close stops accepting events and waits for async handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns a snapshot of delivery counters.
func (b *InMemoryEventBus) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Published: b.metrics.published.Load(),
		Handled:   b.metrics.handled.Load(),
		Failed:    b.metrics.failed.Load(),
	}
}

// EventBusMetrics counts deliveries.
type EventBusMetrics struct {
	published atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
	timeout   time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Published int64 `json:"published"`
	Handled   int64 `json:"handled"`
	Failed    int64 `json:"failed"`
}
