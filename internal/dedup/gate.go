// Package dedup guards the downstream bus so a logical message
// triggers at most one delivery.
package dedup

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

// KV is a conditional key-value store: set a key only if absent, with
// an expiry applied by the store itself.
type KV interface {
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
}

// Bus is the downstream append-only bus.
type Bus interface {
	// Publish appends the payload and returns an opaque entry id.
	Publish(ctx context.Context, streamName string, payload []byte) (uint64, error)
}

// Result is the outcome of a PublishOnce call.
type Result string

const (
	Delivered        Result = "delivered"
	AlreadyDelivered Result = "already_delivered"
	Dropped          Result = "dropped"
)

// Gate implements at-most-once forwarding. A transient store failure
// drops the message rather than risking a double delivery; the loss is
// logged for observability.
type Gate struct {
	kv         KV
	bus        Bus
	streamName string
	logger     *logger.Logger
}

// New creates a gate publishing to the given downstream stream name.
func New(kv KV, bus Bus, streamName string, log *logger.Logger) *Gate {
	return &Gate{kv: kv, bus: bus, streamName: streamName, logger: log}
}

// Key derives the dedupe key for a message ID deterministically.
func Key(messageID string) string {
	return fmt.Sprintf("dedup.%x", sha256.Sum256([]byte(messageID)))
}

// PublishOnce forwards the payload downstream only if this message ID
// has not been seen before.
func (g *Gate) PublishOnce(ctx context.Context, messageID string, payload []byte) (Result, error) {
	set, err := g.kv.SetIfAbsent(ctx, Key(messageID), []byte("1"))
	if err != nil {
		// Fail closed: never double-deliver. The drop is deliberate.
		metrics.DedupDroppedTotal.WithLabelValues("store_unavailable").Inc()
		g.logger.Error("dedup store unavailable, dropping message",
			"message_id", messageID, "error", err)
		return Dropped, fmt.Errorf("%w: %v", model.ErrDedupStoreUnavailable, err)
	}
	if !set {
		metrics.DedupDroppedTotal.WithLabelValues("duplicate").Inc()
		return AlreadyDelivered, nil
	}

	if _, err := g.bus.Publish(ctx, g.streamName, payload); err != nil {
		// The dedupe key is already claimed; a retry here could race a
		// concurrent delivery, so the message is dropped and logged.
		metrics.DedupDroppedTotal.WithLabelValues("publish_failed").Inc()
		g.logger.Error("downstream publish failed after dedup claim",
			"message_id", messageID, "error", err)
		return Dropped, fmt.Errorf("failed to publish downstream: %w", err)
	}
	return Delivered, nil
}
