// Package queue is the bounded hand-off between the datagram receiver and
// the ingestion pipeline.
//
// Enqueue never blocks: when the queue is full the oldest message is
// dropped to make room and the drop counter increments.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Message is the payload type flowing through the queue.
type Message = model.RawMessage

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a message, evicting the oldest one when full.
	// It reports false only when the queue is closed.
	Enqueue(ctx context.Context, m Message) bool

	// Dequeue returns the receive side. It is closed after Close once drained.
	Dequeue(ctx context.Context) <-chan Message

	// Len returns the current number of queued messages.
	Len(ctx context.Context) int

	// Dropped returns how many messages were evicted so far.
	Dropped() int64

	// Close stops accepting messages.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	messages chan Message
	capacity int
	dropped  atomic.Int64
	onDrop   func()

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.messages = make(chan Message, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue adds a message to the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, m Message) bool { //nolint:gocritic // hugeParam: value semantics for channel send
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	for {
		select {
		case q.messages <- m:
			metrics.UpdateQueueDepth(len(q.messages))
			return true
		default:
		}
		// Full: evict the oldest. The consumer may have drained it already,
		// in which case the next send attempt succeeds.
		select {
		case <-q.messages:
			q.dropped.Add(1)
			metrics.RecordQueueDrop()
			if q.onDrop != nil {
				q.onDrop()
			}
		default:
		}
	}
}

// Dequeue returns a channel that will receive messages as they become available.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Message {
	return q.messages
}

// Len returns the current number of queued messages.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.messages)
	metrics.UpdateQueueDepth(size)
	return size
}

// Dropped returns the number of evicted messages.
func (q *InMemoryQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Close gracefully shuts down the queue. Queued messages remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.messages)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
