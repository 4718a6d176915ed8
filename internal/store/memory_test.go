package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

func newTestArtifact(t *testing.T, m *Memory) *model.Artifact {
	t.Helper()
	artifact := &model.Artifact{
		ID:        uuid.Must(uuid.NewV7()).String(),
		OwnerID:   "user-1",
		Kind:      model.KindText,
		Title:     "test artifact",
		CreatedAt: time.Now(),
	}
	require.NoError(t, m.CreateArtifact(context.Background(), artifact))
	return artifact
}

func newTestConversation(t *testing.T, m *Memory) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		OwnerID:    "user-1",
		Title:      "test conversation",
		Visibility: model.VisibilityPrivate,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, m.CreateConversation(context.Background(), conv))
	return conv
}

func TestCreateArtifactStartsAtVersionZero(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)

	got, err := m.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentVersion)
	assert.Equal(t, model.ArtifactActive, got.Status)

	_, err = m.GetVersion(context.Background(), artifact.ID, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentCreateVersionIsGapFree(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	const writers = 50
	versions := make(chan int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.CreateVersion(ctx, artifact.ID, fmt.Sprintf("content-%d", i), "user-1")
			assert.NoError(t, err)
			versions <- v
		}(i)
	}
	wg.Wait()
	close(versions)

	var got []int
	for v := range versions {
		got = append(got, v)
	}
	sort.Ints(got)
	require.Len(t, got, writers)
	for i, v := range got {
		assert.Equal(t, i+1, v, "version numbers must be contiguous with no duplicates")
	}

	updated, err := m.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, updated.CurrentVersion)
}

func TestParallelCreatesFromSameBase(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	_, err := m.CreateVersion(ctx, artifact.ID, "v1", "user-1")
	require.NoError(t, err)

	results := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.CreateVersion(ctx, artifact.ID, "concurrent", "user-1")
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	got := map[int]bool{}
	for v := range results {
		got[v] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true}, got)
}

func TestVersionContentRoundTrip(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	content := "line one\n\ttabbed\n\némoji: 🎨 — ​ zero width\nfin"
	v, err := m.CreateVersion(ctx, artifact.ID, content, "user-1")
	require.NoError(t, err)

	got, err := m.GetVersion(ctx, artifact.ID, v)
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, "user-1", got.AuthorID)
}

func TestGetVersionLatest(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := m.CreateVersion(ctx, artifact.ID, fmt.Sprintf("v%d", i), "user-1")
		require.NoError(t, err)
	}

	latest, err := m.GetVersion(ctx, artifact.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, "v3", latest.Content)

	second, err := m.GetVersion(ctx, artifact.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", second.Content)

	_, err = m.GetVersion(ctx, artifact.ID, 9)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListVersionsOrdered(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := m.CreateVersion(ctx, artifact.ID, fmt.Sprintf("v%d", i), "user-1")
		require.NoError(t, err)
	}

	versions, err := m.ListVersions(ctx, artifact.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}
}

func TestSoftDeleteRetainsHistory(t *testing.T) {
	m := NewMemory()
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	_, err := m.CreateVersion(ctx, artifact.ID, "kept", "user-1")
	require.NoError(t, err)

	require.NoError(t, m.SoftDelete(ctx, artifact.ID))

	got, err := m.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactDeleted, got.Status)
	require.NotNil(t, got.DeletedAt)

	// History survives deletion and stays readable.
	version, err := m.GetVersion(ctx, artifact.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "kept", version.Content)

	require.NoError(t, m.Restore(ctx, artifact.ID))
	got, err = m.GetArtifact(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactActive, got.Status)
	assert.Nil(t, got.DeletedAt)
}

func TestCreateVersionUnknownArtifact(t *testing.T) {
	m := NewMemory()
	_, err := m.CreateVersion(context.Background(), "missing", "content", "user-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistryAppendAndList(t *testing.T) {
	m := NewMemory()
	conv := newTestConversation(t, m)
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		stream, err := m.Append(ctx, conv.ID, artifact.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StreamActive, stream.Status)
		assert.Equal(t, artifact.ID, stream.ArtifactID)
		ids = append(ids, stream.ID)
	}

	listed, err := m.List(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, listed, "streams listed oldest first")

	recent, err := m.MostRecent(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[2], recent.ID)
}

func TestRegistryUnknownConversation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Append(ctx, "missing", "artifact")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = m.List(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = m.MostRecent(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistrySetStatus(t *testing.T) {
	m := NewMemory()
	conv := newTestConversation(t, m)
	artifact := newTestArtifact(t, m)
	ctx := context.Background()

	stream, err := m.Append(ctx, conv.ID, artifact.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(ctx, stream.ID, model.StreamCompleted))
	recent, err := m.MostRecent(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StreamCompleted, recent.Status)

	assert.ErrorIs(t, m.SetStatus(ctx, "missing", model.StreamFailed), model.ErrNotFound)
}
