package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDropHook is called once per evicted message.
func WithDropHook(fn func()) Option {
	return func(q *InMemoryQueue) {
		q.onDrop = fn
	}
}
