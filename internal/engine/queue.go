package engine

import (
	"sync"

	"github.com/roach88/linksync/internal/ir"
)

// DefaultQueueSize is the per-source notification queue capacity.
const DefaultQueueSize = 1024

// Notification is one external membership change as delivered by a
// store's event stream. Only the fields for Source are set.
type Notification struct {
	Source       ir.Side
	GameActor    ir.GameActor
	GameID       ir.GameID
	DiscordActor ir.DiscordActor
	DiscordID    ir.DiscordID
	State        bool
}

// notificationQueue is a bounded, thread-safe FIFO for one notification
// source.
//
// Producers are the store adapters' event hooks; the consumer is one
// drain goroutine in Engine.Run, so per-source order is preserved. When
// the queue is full new notifications are rejected rather than blocking
// the producer; the periodic resync repairs anything that was dropped.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the drain loop.
type notificationQueue struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newNotificationQueue(capacity int) *notificationQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &notificationQueue{
		items:    make([]Notification, 0, min(capacity, 64)),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds n to the back of the queue.
// Returns a RuntimeError if the queue is closed or full.
func (q *notificationQueue) Enqueue(n Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return newClosedError(n.Source)
	}
	if len(q.items) >= q.capacity {
		return newQueueFullError(n.Source, q.capacity)
	}

	q.items = append(q.items, n)

	// Non-blocking: a buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue removes and returns the front notification without blocking.
func (q *notificationQueue) TryDequeue() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Notification{}, false
	}

	n := q.items[0]
	q.items[0] = Notification{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// Wait returns a channel that signals when notifications may be available.
// The channel is closed when the queue is closed.
func (q *notificationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *notificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *notificationQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close stops accepting notifications and wakes the consumer.
// Items already queued can still be dequeued.
func (q *notificationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
