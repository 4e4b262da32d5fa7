package events

import (
	"context"
	"errors"
	"sync"
)

// ErrBufferFull is returned when nobody drains the memory bus.
var ErrBufferFull = errors.New("event buffer full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("event bus closed")

// MemoryBus buffers events in a channel. Publish never blocks.
type MemoryBus struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemoryBus creates a bus holding up to size undelivered events.
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{ch: make(chan Event, size)}
}

// Publish enqueues event or fails when the buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.ch <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Consume hands events to handler until ctx is done or the bus is closed.
// Handler errors do not stop consumption.
func (b *MemoryBus) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-b.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, event)
		}
	}
}

// Close stops the bus. Buffered events remain consumable.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		close(b.ch)
		b.closed = true
	}
	return nil
}
