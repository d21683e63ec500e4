package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned by Emit once the bus has been closed.
	ErrClosed = errors.New("events: bus closed")
	// ErrQueueFull is returned when a listener emits while the queue is full.
	ErrQueueFull = errors.New("events: delivery queue full")
)

// deliveryKey marks contexts handed to listeners.
type deliveryKey struct{}

// DefaultQueueSize is the number of pending deliveries buffered before Emit waits.
const DefaultQueueSize = 256

// Listener handles an event emitted under the key it was registered with.
type Listener func(ctx context.Context, ev Event)

// ErrorListener is notified of rejected deliveries.
type ErrorListener func(f Failure)

type delivery struct {
	ctx       context.Context
	key       string
	ev        Event
	listeners []Listener
}

// Bus maps keys to ordered listener lists. Emission is asynchronous: a single
// worker runs deliveries in FIFO order, and listeners of one key run in the
// order they were registered.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string][]Listener
	onError   []ErrorListener

	// state guards queue against sends after Close.
	state  sync.RWMutex
	closed bool
	queue  chan delivery
	done   chan struct{}
}

// NewBus creates a bus and starts its delivery worker. Call Close to stop it.
func NewBus(logger *slog.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		logger:    logger.With(slog.String("component", "bus")),
		listeners: make(map[string][]Listener),
		queue:     make(chan delivery, queueSize),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// On registers l under key. Wildcard receives every event.
func (b *Bus) On(key string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners[key] = append(b.listeners[key], l)
	b.logger.Debug("listener registered", "key", key, "count", len(b.listeners[key]))
}

// OnError registers a listener for rejected deliveries.
func (b *Bus) OnError(l ErrorListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onError = append(b.onError, l)
}

// ListenerCount returns the number of listeners registered under key.
func (b *Bus) ListenerCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if key == KeyError {
		return len(b.onError)
	}
	return len(b.listeners[key])
}

// Emit queues ev for the listeners currently registered under key and
// returns without waiting for them. It blocks only while the queue is full,
// until room frees up or ctx is done.
//
// Listeners receive a context that carries ctx's values but not its
// cancellation, so they outlive the request that produced the event.
// Emit called with such a context never blocks: the worker would be waiting
// on its own queue, so a full queue returns ErrQueueFull instead.
func (b *Bus) Emit(ctx context.Context, key string, ev Event) error {
	b.mu.RLock()
	ls := b.listeners[key]
	snapshot := make([]Listener, len(ls))
	copy(snapshot, ls)
	b.mu.RUnlock()

	b.state.RLock()
	defer b.state.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if len(snapshot) == 0 {
		b.logger.Debug("no listeners for key", "key", key, "event_id", ev.ID)
		return nil
	}

	d := delivery{
		ctx:       context.WithValue(context.WithoutCancel(ctx), deliveryKey{}, true),
		key:       key,
		ev:        ev,
		listeners: snapshot,
	}

	if ctx.Value(deliveryKey{}) != nil {
		select {
		case b.queue <- d:
			return nil
		default:
			b.logger.Warn("event dropped: delivery queue full", "key", key, "event_id", ev.ID)
			return fmt.Errorf("emit %q: %w", key, ErrQueueFull)
		}
	}

	select {
	case b.queue <- d:
		return nil
	case <-ctx.Done():
		b.logger.Warn("event dropped: delivery queue full", "key", key, "event_id", ev.ID)
		return fmt.Errorf("emit %q: %w", key, ctx.Err())
	}
}

// Fail notifies error listeners synchronously, in registration order.
func (b *Bus) Fail(f Failure) {
	b.mu.RLock()
	ls := make([]ErrorListener, len(b.onError))
	copy(ls, b.onError)
	b.mu.RUnlock()

	for _, l := range ls {
		b.callError(l, f)
	}
}

// Close stops accepting events, delivers everything already queued and
// waits for the worker to exit. It is safe to call more than once.
func (b *Bus) Close() {
	b.state.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.state.Unlock()

	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for d := range b.queue {
		for _, l := range d.listeners {
			b.call(l, d)
		}
	}
}

func (b *Bus) call(l Listener, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", "key", d.key, "event_id", d.ev.ID, "panic", r)
		}
	}()
	l(d.ctx, d.ev)
}

func (b *Bus) callError(l ErrorListener, f Failure) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("error listener panicked", "panic", r)
		}
	}()
	l(f)
}
