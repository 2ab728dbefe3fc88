// shared/queue.go
package shared

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"
)

// MessageQueueClient carries job descriptors from the dispatcher to workers.
// Every published message is delivered to at most one consumer.
type MessageQueueClient interface {
	Publish(ctx context.Context, message JobMessage) error
	// Receive blocks until one message is available and takes it off the
	// queue. Callers only receive when they can run the job right away. It
	// returns ctx.Err() when ctx is done and ErrQueueClosed after Close.
	Receive(ctx context.Context) (JobMessage, error)
	Close() error
}

// InMemoryQueue implements MessageQueueClient using a Go channel
type InMemoryQueue struct {
	mu     sync.RWMutex
	closed bool
	queue  chan JobMessage
}

// NewInMemoryQueue creates a new in-memory queue instance
func NewInMemoryQueue(bufferSize int) *InMemoryQueue {
	if bufferSize <= 0 {
		bufferSize = DefaultQueueBuffer
	}
	return &InMemoryQueue{
		queue: make(chan JobMessage, bufferSize),
	}
}

// Publish sends a message to the queue without blocking
func (q *InMemoryQueue) Publish(_ context.Context, message JobMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.queue <- message:
		log.Printf("INFO: Queue: Published job %s", message.JobID)
		return nil
	default:
		return errors.Wrapf(ErrQueueFull, "cannot publish job %s", message.JobID)
	}
}

// Receive takes the next message; concurrent receivers each get
// distinct messages.
func (q *InMemoryQueue) Receive(ctx context.Context) (JobMessage, error) {
	select {
	case <-ctx.Done():
		return JobMessage{}, ctx.Err()
	case msg, ok := <-q.queue:
		if !ok {
			return JobMessage{}, ErrQueueClosed
		}
		return msg, nil
	}
}

// Len reports the number of messages waiting to be consumed
func (q *InMemoryQueue) Len() int {
	return len(q.queue)
}

// Close stops the queue from accepting new messages and closes the underlying channel
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	log.Println("INFO: Queue: Closing...")
	q.closed = true
	close(q.queue)
	return nil
}
