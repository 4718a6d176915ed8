package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DedupBucket is the KV bucket backing the outbound dedup gate.
const DedupBucket = "artifact_dedup"

// KVStore is a conditional key-value store on a JetStream KeyValue
// bucket. Create is atomic create-if-absent, and the bucket TTL expires
// claims, which together give set-if-absent-with-expiry semantics.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore ensures the dedup bucket exists with the given TTL.
func NewKVStore(ctx context.Context, client *Client, ttl time.Duration) (*KVStore, error) {
	kv, err := client.JetStream().CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      DedupBucket,
		TTL:         ttl,
		Storage:     jetstream.FileStorage,
		Description: "Outbound delivery dedup claims",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}
	return &KVStore{kv: kv}, nil
}

// SetIfAbsent claims the key, returning false when it already exists.
func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	_, err := s.kv.Create(ctx, key, value)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create key: %w", err)
}
