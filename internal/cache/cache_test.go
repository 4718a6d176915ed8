package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

func makeVersions(n int) []model.ArtifactVersion {
	versions := make([]model.ArtifactVersion, n)
	for i := range versions {
		versions[i] = model.ArtifactVersion{
			ArtifactID: "a1",
			Version:    i + 1,
			Content:    fmt.Sprintf("v%d", i+1),
		}
	}
	return versions
}

func TestGetMissThenHit(t *testing.T) {
	c := New(8, time.Minute)

	assert.Nil(t, c.Get("g1"))

	c.Set("g1", makeVersions(3), 2)
	entry := c.Get("g1")
	require.NotNil(t, entry)
	assert.Equal(t, "g1", entry.GroupID)
	assert.Len(t, entry.Versions, 3)
	assert.Equal(t, 2, entry.CurrentIndex)
}

func TestExpiredEntryEvictedOnAccess(t *testing.T) {
	c := New(8, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("g1", makeVersions(1), 0)

	c.now = func() time.Time { return base.Add(time.Minute + time.Second) }
	assert.Nil(t, c.Get("g1"))

	// The stale entry is gone, not merely hidden.
	c.mu.Lock()
	_, ok := c.items["g1"]
	c.mu.Unlock()
	assert.False(t, ok)
}

func TestEntryFreshAtTTLBoundary(t *testing.T) {
	c := New(8, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("g1", makeVersions(1), 0)

	c.now = func() time.Time { return base.Add(time.Minute) }
	assert.NotNil(t, c.Get("g1"))
}

func TestSetTruncatesVersionList(t *testing.T) {
	c := New(8, time.Minute)

	c.Set("g1", makeVersions(25), 0)
	entry := c.Get("g1")
	require.NotNil(t, entry)
	require.Len(t, entry.Versions, MaxCachedVersions)
	assert.Equal(t, 1, entry.Versions[0].Version)
	assert.Equal(t, MaxCachedVersions, entry.Versions[MaxCachedVersions-1].Version)
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)

	c.Set("g1", makeVersions(1), 0)
	c.Set("g2", makeVersions(1), 0)

	// Touch g1 so g2 becomes the eviction candidate.
	require.NotNil(t, c.Get("g1"))

	c.Set("g3", makeVersions(1), 0)

	assert.NotNil(t, c.Get("g1"))
	assert.Nil(t, c.Get("g2"))
	assert.NotNil(t, c.Get("g3"))
}

func TestInvalidate(t *testing.T) {
	c := New(8, time.Minute)
	c.Set("g1", makeVersions(1), 0)
	c.Invalidate("g1")
	assert.Nil(t, c.Get("g1"))

	// Invalidating an absent group is a no-op.
	c.Invalidate("never-set")
}

func TestPreloadCoalescesConcurrentFetches(t *testing.T) {
	c := New(8, time.Minute)

	var fetches atomic.Int64
	fetch := func(ctx context.Context) ([]model.ArtifactVersion, int, error) {
		fetches.Add(1)
		time.Sleep(20 * time.Millisecond)
		return makeVersions(3), 1, nil
	}

	const callers = 10
	entries := make([]*Entry, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.Preload(context.Background(), "g1", fetch)
			assert.NoError(t, err)
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "concurrent callers share one fetch")
	for i := 0; i < callers; i++ {
		require.NotNil(t, entries[i])
		assert.Equal(t, 1, entries[i].CurrentIndex)
		assert.Len(t, entries[i].Versions, 3)
	}
	assert.False(t, c.Loading("g1"))
}

func TestPreloadServesFreshEntryWithoutFetch(t *testing.T) {
	c := New(8, time.Minute)
	c.Set("g1", makeVersions(2), 0)

	entry, err := c.Preload(context.Background(), "g1", func(ctx context.Context) ([]model.ArtifactVersion, int, error) {
		t.Fatal("fetch must not run for a fresh entry")
		return nil, 0, nil
	})
	require.NoError(t, err)
	assert.Len(t, entry.Versions, 2)
}

func TestPreloadClearsLoadingOnFailure(t *testing.T) {
	c := New(8, time.Minute)
	wantErr := errors.New("backend down")

	_, err := c.Preload(context.Background(), "g1", func(ctx context.Context) ([]model.ArtifactVersion, int, error) {
		return nil, 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.Loading("g1"))
	assert.Nil(t, c.Get("g1"))
}

func TestLoadingFlagVisibleDuringFetch(t *testing.T) {
	c := New(8, time.Minute)
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, err := c.Preload(context.Background(), "g1", func(ctx context.Context) ([]model.ArtifactVersion, int, error) {
			<-release
			return makeVersions(1), 0, nil
		})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return c.Loading("g1") },
		time.Second, time.Millisecond, "loading flag set while fetch is in flight")

	close(release)
	<-done
	assert.False(t, c.Loading("g1"))
	assert.NotNil(t, c.Get("g1"))
}
