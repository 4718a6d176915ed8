// Package cache provides a bounded LRU-with-TTL cache of recently
// viewed version lists, avoiding refetch storms on the client path.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

// MaxCachedVersions caps how many versions one entry retains. Entries
// beyond the tenth version are never cached.
const MaxCachedVersions = 10

// Entry is one cached version list.
type Entry struct {
	GroupID      string
	Versions     []model.ArtifactVersion
	CurrentIndex int
	LastFetched  time.Time
}

// FetchFunc loads a version list when the cache cannot serve it.
type FetchFunc func(ctx context.Context) ([]model.ArtifactVersion, int, error)

// VersionCache is a bounded LRU with a fixed TTL. Expired entries are
// evicted lazily on access. Constructed and injected per process, never
// a global.
type VersionCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	loading  map[string]bool

	group singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a cache holding at most capacity entries, each fresh for ttl.
func New(capacity int, ttl time.Duration) *VersionCache {
	if capacity <= 0 {
		capacity = 512
	}
	return &VersionCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		loading:  make(map[string]bool),
		now:      time.Now,
	}
}

// Get returns the cached entry, or nil when absent or expired. An
// expired entry is evicted on the way out.
func (c *VersionCache) Get(groupID string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(groupID)
}

func (c *VersionCache) getLocked(groupID string) *Entry {
	elem, ok := c.items[groupID]
	if !ok {
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	entry := elem.Value.(*Entry)
	if c.now().Sub(entry.LastFetched) > c.ttl {
		c.ll.Remove(elem)
		delete(c.items, groupID)
		metrics.CacheHitsTotal.WithLabelValues("expired").Inc()
		return nil
	}
	c.ll.MoveToFront(elem)
	metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
	return entry
}

// Set stores the first MaxCachedVersions versions for the group.
func (c *VersionCache) Set(groupID string, versions []model.ArtifactVersion, currentIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(groupID, versions, currentIndex)
}

func (c *VersionCache) setLocked(groupID string, versions []model.ArtifactVersion, currentIndex int) *Entry {
	if len(versions) > MaxCachedVersions {
		versions = versions[:MaxCachedVersions]
	}
	kept := make([]model.ArtifactVersion, len(versions))
	copy(kept, versions)

	entry := &Entry{
		GroupID:      groupID,
		Versions:     kept,
		CurrentIndex: currentIndex,
		LastFetched:  c.now(),
	}

	if elem, ok := c.items[groupID]; ok {
		elem.Value = entry
		c.ll.MoveToFront(elem)
		return entry
	}
	c.items[groupID] = c.ll.PushFront(entry)
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*Entry).GroupID)
	}
	return entry
}

// Invalidate drops the entry for the group, if any.
func (c *VersionCache) Invalidate(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[groupID]; ok {
		c.ll.Remove(elem)
		delete(c.items, groupID)
	}
}

// Loading reports whether a fetch for the group is in flight. Exposed
// for UI gating.
func (c *VersionCache) Loading(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[groupID]
}

// Preload returns the cached entry if fresh; otherwise it performs
// exactly one underlying fetch per group even under concurrent callers,
// populates the cache, and releases all waiters with the same result.
// The loading flag is cleared on both success and failure.
func (c *VersionCache) Preload(ctx context.Context, groupID string, fetch FetchFunc) (*Entry, error) {
	c.mu.Lock()
	if entry := c.getLocked(groupID); entry != nil {
		c.mu.Unlock()
		return entry, nil
	}
	c.loading[groupID] = true
	c.mu.Unlock()

	result, err, _ := c.group.Do(groupID, func() (any, error) {
		defer func() {
			c.mu.Lock()
			delete(c.loading, groupID)
			c.mu.Unlock()
		}()

		versions, currentIndex, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		entry := c.setLocked(groupID, versions, currentIndex)
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		c.mu.Lock()
		delete(c.loading, groupID)
		c.mu.Unlock()
		return nil, err
	}
	return result.(*Entry), nil
}
