package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity of each subscriber.
const DefaultBuffer = 16

// TypedBus fans events of type T out to buffered subscriber channels.
// Publish never blocks: an event that does not fit in a subscriber's buffer
// is dropped for that subscriber and counted.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Uint64
	onDrop  func(T)
}

// NewTyped creates a bus whose subscribers buffer up to buffer events.
// A non-positive buffer uses DefaultBuffer.
func NewTyped[T any](buffer int) *TypedBus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &TypedBus[T]{buffer: buffer}
}

// OnDrop registers a callback run for every dropped delivery. It must not
// publish on the same bus.
func (b *TypedBus[T]) OnDrop(fn func(T)) *TypedBus[T] {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
	return b
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(e)
			}
		}
	}
}

// Dropped returns the number of deliveries lost to full buffers.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a subscriber. On a closed bus the channel is returned
// already closed.
func (b *TypedBus[T]) Subscribe() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
