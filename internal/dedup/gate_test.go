package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
)

type failingBus struct{}

func (failingBus) Publish(context.Context, string, []byte) (uint64, error) {
	return 0, errors.New("bus down")
}

func newTestGate(kv KV, bus Bus) *Gate {
	return New(kv, bus, "changed", logger.NewNop())
}

func TestPublishOnceDelivers(t *testing.T) {
	bus := NewMemoryBus()
	gate := newTestGate(NewMemoryKV(time.Minute), bus)

	result, err := gate.PublishOnce(context.Background(), "artifact-1.v1", []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, Delivered, result)

	entries := bus.Entries("changed")
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"v":1}`, string(entries[0]))
}

func TestDuplicateMessageDeliveredOnce(t *testing.T) {
	bus := NewMemoryBus()
	gate := newTestGate(NewMemoryKV(time.Minute), bus)
	ctx := context.Background()

	result, err := gate.PublishOnce(ctx, "artifact-1.v1", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, Delivered, result)

	result, err = gate.PublishOnce(ctx, "artifact-1.v1", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyDelivered, result)

	assert.Len(t, bus.Entries("changed"), 1)
}

func TestDistinctMessagesBothDeliver(t *testing.T) {
	bus := NewMemoryBus()
	gate := newTestGate(NewMemoryKV(time.Minute), bus)
	ctx := context.Background()

	_, err := gate.PublishOnce(ctx, "artifact-1.v1", []byte("a"))
	require.NoError(t, err)
	_, err = gate.PublishOnce(ctx, "artifact-1.v2", []byte("b"))
	require.NoError(t, err)

	assert.Len(t, bus.Entries("changed"), 2)
}

func TestConcurrentPublishOnceSingleDelivery(t *testing.T) {
	bus := NewMemoryBus()
	gate := newTestGate(NewMemoryKV(time.Minute), bus)

	const callers = 20
	results := make(chan Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := gate.PublishOnce(context.Background(), "artifact-1.v1", []byte("a"))
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	delivered := 0
	for result := range results {
		if result == Delivered {
			delivered++
		} else {
			assert.Equal(t, AlreadyDelivered, result)
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Len(t, bus.Entries("changed"), 1)
}

func TestStoreFailureDropsMessage(t *testing.T) {
	bus := NewMemoryBus()
	kv := NewMemoryKV(time.Minute)
	kv.Err = errors.New("kv unreachable")
	gate := newTestGate(kv, bus)

	result, err := gate.PublishOnce(context.Background(), "artifact-1.v1", []byte("a"))
	assert.Equal(t, Dropped, result)
	assert.ErrorIs(t, err, model.ErrDedupStoreUnavailable)
	assert.Empty(t, bus.Entries("changed"), "fail closed: no delivery when the store is down")
}

func TestPublishFailureAfterClaimDrops(t *testing.T) {
	kv := NewMemoryKV(time.Minute)
	gate := newTestGate(kv, failingBus{})
	ctx := context.Background()

	result, err := gate.PublishOnce(ctx, "artifact-1.v1", []byte("a"))
	assert.Equal(t, Dropped, result)
	assert.Error(t, err)

	// The claim stands; a retry of the same message stays suppressed
	// rather than risking a second delivery.
	result, err = gate.PublishOnce(ctx, "artifact-1.v1", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyDelivered, result)
}

func TestKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, Key("m1"), Key("m1"))
	assert.NotEqual(t, Key("m1"), Key("m2"))

	// Keys are opaque digests; raw message IDs never appear in the store.
	assert.NotContains(t, Key("artifact-1.v1"), "artifact-1")
}

func TestMemoryKVExpiry(t *testing.T) {
	kv := NewMemoryKV(10 * time.Millisecond)
	ctx := context.Background()

	set, err := kv.SetIfAbsent(ctx, "k", []byte("1"))
	require.NoError(t, err)
	assert.True(t, set)

	set, err = kv.SetIfAbsent(ctx, "k", []byte("1"))
	require.NoError(t, err)
	assert.False(t, set)

	time.Sleep(20 * time.Millisecond)
	set, err = kv.SetIfAbsent(ctx, "k", []byte("1"))
	require.NoError(t, err)
	assert.True(t, set, "expired keys can be claimed again")
}

func TestGatePayloadPassthrough(t *testing.T) {
	bus := NewMemoryBus()
	gate := newTestGate(NewMemoryKV(time.Minute), bus)

	payload, err := json.Marshal(map[string]any{"artifact_id": "a1", "version": 3})
	require.NoError(t, err)

	_, err = gate.PublishOnce(context.Background(), "a1.v3", payload)
	require.NoError(t, err)

	entries := bus.Entries("changed")
	require.Len(t, entries, 1)
	assert.Equal(t, payload, entries[0])
}
