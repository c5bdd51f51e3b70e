package pubsub_test

import (
	"context"
	"testing"

	cloudpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/transport/pubsub"
)

func newFakeClient(t *testing.T) (*cloudpubsub.Client, func()) {
	t.Helper()
	srv := pstest.NewServer()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := cloudpubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, func() {
		client.Close()
		conn.Close()
		srv.Close()
	}
}

func TestPublisher_Publish_DeliversMessage(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newFakeClient(t)
	defer cleanup()

	topic, err := client.CreateTopic(ctx, "topic-id")
	require.NoError(t, err)
	topic.EnableMessageOrdering = true
	sub, err := client.CreateSubscription(ctx, "sub-id", cloudpubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher := pubsub.NewPublisher(topic, nil)
	task := domain.TaskMessage{JobID: "job-1", UserID: "user-1", URLs: []string{"https://example.com"}}

	err = publisher.Publish(ctx, task.JobID, task)
	require.NoError(t, err)

	received := make(chan *cloudpubsub.Message, 1)
	go func() {
		_ = sub.Receive(ctx, func(_ context.Context, msg *cloudpubsub.Message) {
			received <- msg
			msg.Ack()
		})
	}()
	msg := <-received
	assert.Contains(t, string(msg.Data), task.JobID)

	require.NoError(t, publisher.Close())
}

func TestPublisher_Publish_PropagatesBrokerError(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newFakeClient(t)
	defer cleanup()

	topic, err := client.CreateTopic(ctx, "topic-id")
	require.NoError(t, err)
	// Stop the topic before publishing so the broker rejects the send,
	// exercising the path where Publish must surface a real error to the
	// caller instead of swallowing it in a detached goroutine.
	topic.Stop()

	publisher := pubsub.NewPublisher(topic, nil)
	task := domain.TaskMessage{JobID: "job-2", UserID: "user-1", URLs: []string{"https://example.com"}}

	err = publisher.Publish(ctx, task.JobID, task)
	assert.Error(t, err)
}
