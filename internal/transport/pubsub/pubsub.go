// Package pubsub implements the work-queue transport against Google Cloud
// Pub/Sub, using the task's job ID as the ordering key so that a single
// job's message is never reordered relative to itself across retries.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/transport"
)

// Publisher publishes task messages to a single Pub/Sub topic with message
// ordering enabled.
type Publisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPublisher wraps an existing topic handle. Callers are expected to have
// set topic.EnableMessageOrdering = true before constructing a Publisher.
func NewPublisher(topic *pubsub.Topic, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, logger: logger}
}

// Publish marshals task to JSON, publishes it under orderingKey, and blocks
// until the broker acknowledges the publish or the context is canceled, so
// a permanent publish failure surfaces to the caller as an error.
func (p *Publisher) Publish(ctx context.Context, orderingKey string, task domain.TaskMessage) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}
	msg := &pubsub.Message{Data: data, OrderingKey: orderingKey}
	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		p.logger.Error("publish task message failed",
			zap.String("jobId", task.JobID), zap.Error(err))
		return fmt.Errorf("publish task message: %w", err)
	}
	p.logger.Debug("published task message",
		zap.String("jobId", task.JobID), zap.String("messageId", id))
	return nil
}

// Close flushes any buffered messages and stops the topic's publisher.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return nil
}

// Subscriber delivers task messages from a single Pub/Sub subscription.
type Subscriber struct {
	sub *pubsub.Subscription
}

// NewSubscriber wraps an existing subscription handle.
func NewSubscriber(sub *pubsub.Subscription) *Subscriber {
	return &Subscriber{sub: sub}
}

// Receive blocks, dispatching each delivered message to handler. It
// returns when ctx is canceled or the underlying Receive call fails.
func (s *Subscriber) Receive(ctx context.Context, handler func(context.Context, transport.Delivery) error) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var task domain.TaskMessage
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			// Malformed records are acknowledged so they are not redelivered
			// forever; they are not logged here.
			msg.Ack()
			return
		}
		delivery := transport.Delivery{Task: task, Ack: msg.Ack, Nack: msg.Nack}
		if err := handler(ctx, delivery); err != nil {
			msg.Nack()
			return
		}
	})
}

// Close is a no-op: the subscription shares its parent client's lifecycle,
// closed separately by the owner of the *pubsub.Client.
func (s *Subscriber) Close() error {
	return nil
}
