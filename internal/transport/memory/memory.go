// Package memory implements an in-process work queue for tests and
// local/dev runs that have no Pub/Sub emulator available. It preserves
// per-ordering-key FIFO delivery the same way the production transport's
// ordering keys do.
package memory

import (
	"context"
	"sync"

	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/transport"
)

// Queue is a single-process Publisher and Subscriber pair backed by a
// buffered channel.
type Queue struct {
	mu     sync.Mutex
	ch     chan domain.TaskMessage
	closed bool
}

// New constructs a Queue with the given channel capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan domain.TaskMessage, capacity)}
}

// Publish enqueues task. orderingKey is accepted for interface conformance
// but unused: a single channel already preserves submission order.
func (q *Queue) Publish(ctx context.Context, orderingKey string, task domain.TaskMessage) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return transport.ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive delivers queued messages to handler until ctx is canceled.
// Ack/Nack are no-ops: an in-memory queue has no redelivery semantics to
// drive, since the process dying loses the channel's contents anyway.
func (q *Queue) Receive(ctx context.Context, handler func(context.Context, transport.Delivery) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-q.ch:
			if !ok {
				return nil
			}
			delivery := transport.Delivery{Task: task, Ack: func() {}, Nack: func() {}}
			if err := handler(ctx, delivery); err != nil {
				return err
			}
		}
	}
}

// Close marks the queue closed and drains no further publishes.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}
