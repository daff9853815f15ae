// Package queue carries deduplicated postings from the deduplicator to the
// scoring workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Task is one unique posting waiting to be scored.
type Task struct {
	Fingerprint model.Fingerprint
	Posting     model.JobPosting
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Task) bool

	// Dequeue returns a channel that receives tasks in FIFO order.
	// The channel is closed once the queue is closed and drained.
	Dequeue() <-chan Task

	// Len returns the current number of queued tasks.
	Len() int

	// Close stops accepting tasks. Queued tasks are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int

	mu     sync.RWMutex
	closed bool

	once sync.Once
	out  chan Task
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a task to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) bool { //nolint:gocritic // tasks travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		return false
	}

	select {
	case q.tasks <- t:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.tasks))
		return true
	default:
		return false
	}
}

// Dequeue returns the consumer channel. Every call returns the same channel,
// so several workers can share it.
func (q *InMemoryQueue) Dequeue() <-chan Task {
	q.once.Do(func() {
		q.out = make(chan Task)
		go func() {
			defer close(q.out)
			for t := range q.tasks {
				q.out <- t
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.tasks))
			}
		}()
	})
	return q.out
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len() int {
	size := len(q.tasks)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting tasks.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
