package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the artifact events stream.
	StreamName = "ARTIFACT_EVENTS"

	// SubjectPrefix is the prefix for all artifact event subjects.
	SubjectPrefix = "artifact"
)

// EventBus publishes artifact-changed events to a durable JetStream
// stream. It implements the downstream append-only bus consumed by the
// dedup gate.
type EventBus struct {
	client *Client
}

// NewEventBus creates an event bus on the given client.
func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

// EnsureStream ensures the artifact events stream exists.
func (b *EventBus) EnsureStream(ctx context.Context) error {
	js := b.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Artifact change notifications",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish appends a payload and returns the stream sequence as the
// opaque entry id.
func (b *EventBus) Publish(ctx context.Context, streamName string, payload []byte) (uint64, error) {
	subject := fmt.Sprintf("%s.%s", SubjectPrefix, streamName)
	ack, err := b.client.JetStream().Publish(ctx, subject, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}
