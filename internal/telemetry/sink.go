package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/rad-security/clawkeeper-sub000/internal/remote"
)

// EventsPath is the dashboard endpoint receiving event batches.
const EventsPath = "/shield/events"

// Sink delivers one batch of events.
type Sink interface {
	Send(ctx context.Context, events []EventPayload) error
}

type eventBatch struct {
	Events []EventPayload `json:"events"`
}

// HTTPSink posts batches to the dashboard API.
type HTTPSink struct {
	client *remote.Client
}

// NewHTTPSink creates a sink backed by client.
func NewHTTPSink(client *remote.Client) *HTTPSink {
	return &HTTPSink{client: client}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, events []EventPayload) error {
	return s.client.PostJSON(ctx, EventsPath, eventBatch{Events: events})
}

// PubSubSink publishes each batch as one Cloud Pub/Sub message, for
// deployments that route shield events through their own pipeline.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	source string
}

// NewPubSubSink connects to topicID in projectID. source is attached to each
// message as an attribute (normally the hostname).
func NewPubSubSink(ctx context.Context, projectID, topicID, source string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &PubSubSink{client: client, topic: client.Topic(topicID), source: source}, nil
}

// Send implements Sink. It waits for the server to acknowledge the message.
func (s *PubSubSink) Send(ctx context.Context, events []EventPayload) error {
	data, err := json.Marshal(eventBatch{Events: events})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	res := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source": s.source,
			"count":  strconv.Itoa(len(events)),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
