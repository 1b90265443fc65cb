package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

func TestPublisherDispatch(t *testing.T) {
	ctx := context.Background()

	// Create a fake Pub/Sub server.
	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "alerts")
	require.NoError(t, err)

	pub := New(topic, nil)
	defer pub.Close()

	payload := alert.WebhookPayload{
		CycleID: "cycle-1",
		Webhook: "w1",
		Results: []alert.MatchResult{{Label: "L1", Board: "b1", ThreadID: 7, Link: "https://x/b1/thread/7"}},
	}
	require.NoError(t, pub.Dispatch(ctx, "w1", payload))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "w1", msgs[0].Attributes[AttrWebhookID])
	assert.Equal(t, "cycle-1", msgs[0].Attributes[AttrCycleID])

	var decoded alert.WebhookPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	assert.Equal(t, payload.Results, decoded.Results)
}

func TestPublisherRequiresTopic(t *testing.T) {
	t.Parallel()

	err := New(nil, nil).Dispatch(context.Background(), "w1", alert.WebhookPayload{})
	require.Error(t, err)
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
