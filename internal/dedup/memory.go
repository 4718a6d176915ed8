package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-memory conditional key-value store with per-key
// expiry. It backs unit tests and local development without NATS.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration

	// Err, when set, is returned by every SetIfAbsent call. Test hook
	// for the fail-closed path.
	Err error
}

// NewMemoryKV creates an in-memory KV with the given key TTL.
func NewMemoryKV(ttl time.Duration) *MemoryKV {
	return &MemoryKV{entries: make(map[string]time.Time), ttl: ttl}
}

// SetIfAbsent claims the key if it is absent or expired.
func (m *MemoryKV) SetIfAbsent(_ context.Context, key string, _ []byte) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, ok := m.entries[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	m.entries[key] = time.Now().Add(m.ttl)
	return true, nil
}

// MemoryBus is an in-memory append-only bus.
type MemoryBus struct {
	mu      sync.Mutex
	entries map[string][][]byte
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{entries: make(map[string][][]byte)}
}

// Publish appends the payload to the named stream.
func (m *MemoryBus) Publish(_ context.Context, streamName string, payload []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[streamName] = append(m.entries[streamName], payload)
	return uint64(len(m.entries[streamName])), nil
}

// Entries returns all payloads appended to the named stream.
func (m *MemoryBus) Entries(streamName string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.entries[streamName]))
	copy(out, m.entries[streamName])
	return out
}
