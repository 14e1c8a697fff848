package bus

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 100

// MessageBus fans reply lifecycle events out to subscribers.
type MessageBus struct {
	subscribers map[uint64]chan Event
	nextID      uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// PublishEvent delivers event to every subscriber without blocking. It reports
// false once the bus is closed or ctx is done.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if mb == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop.
		}
	}

	return true
}

// SubscribeEvents registers a buffered subscription that ends when ctx is done,
// the bus closes, or the returned func is called.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextID
	mb.nextID++
	mb.subscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.subscribers[id]; ok {
				delete(mb.subscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-mb.done:
		}
		unsubscribe()
	}()

	return ch, unsubscribe
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.subscribers {
			close(ch)
			delete(mb.subscribers, id)
		}
		mb.mu.Unlock()
	})
}
