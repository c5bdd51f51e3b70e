// Package transport defines the work-queue contract JID publishes task
// messages to and consumes them from. Production runs against Google Cloud
// Pub/Sub; tests and local/dev runs use the in-memory implementation.
package transport

import (
	"context"
	"errors"

	"github.com/clearwell/crawlctl/internal/domain"
)

// ErrClosed is returned by Publish once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Publisher hands a task message to the transport for delivery to exactly
// one consumer. orderingKey groups messages that must be delivered in
// submission order; JID uses the job's own ID, mirroring a partition key.
type Publisher interface {
	Publish(ctx context.Context, orderingKey string, task domain.TaskMessage) error
	Close() error
}

// Delivery wraps one received task message together with its
// acknowledgment handle.
type Delivery struct {
	Task domain.TaskMessage
	// Ack must be called once the task has been inserted into the
	// admission engine's pending set, or discarded as malformed. Nack must
	// be called on any failure before that point so the transport
	// redelivers it.
	Ack  func()
	Nack func()
}

// Subscriber delivers task messages to handler until ctx is canceled or
// handler returns a non-nil error that should stop the receive loop.
// Implementations guarantee at-least-once delivery.
type Subscriber interface {
	Receive(ctx context.Context, handler func(context.Context, Delivery) error) error
	Close() error
}
