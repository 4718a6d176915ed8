package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

// Memory is an in-memory implementation of ConversationStore,
// StreamRegistry, and ArtifactStore. It backs unit tests and local
// development without a database.
type Memory struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	streams       map[string]*model.GenerationStream
	byConv        map[string][]string
	artifacts     map[string]*model.Artifact
	versions      map[string][]model.ArtifactVersion
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*model.Conversation),
		streams:       make(map[string]*model.GenerationStream),
		byConv:        make(map[string][]string),
		artifacts:     make(map[string]*model.Artifact),
		versions:      make(map[string][]model.ArtifactVersion),
	}
}

// CreateConversation inserts a conversation record.
func (m *Memory) CreateConversation(_ context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *conv
	m.conversations[conv.ID] = &c
	return nil
}

// GetConversation fetches a conversation by ID.
func (m *Memory) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *conv
	return &c, nil
}

// Append registers a new generation stream for the conversation.
func (m *Memory) Append(_ context.Context, conversationID, artifactID string) (*model.GenerationStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return nil, model.ErrNotFound
	}
	stream := &model.GenerationStream{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		ArtifactID:     artifactID,
		Status:         model.StreamActive,
		CreatedAt:      time.Now(),
	}
	m.streams[stream.ID] = stream
	m.byConv[conversationID] = append(m.byConv[conversationID], stream.ID)
	s := *stream
	return &s, nil
}

// List returns stream IDs for the conversation, oldest first.
func (m *Memory) List(_ context.Context, conversationID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return nil, model.ErrNotFound
	}
	ids := m.byConv[conversationID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// MostRecent returns the newest stream for the conversation.
func (m *Memory) MostRecent(_ context.Context, conversationID string) (*model.GenerationStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byConv[conversationID]
	if len(ids) == 0 {
		return nil, model.ErrNotFound
	}
	s := *m.streams[ids[len(ids)-1]]
	return &s, nil
}

// SetStatus transitions a stream's status.
func (m *Memory) SetStatus(_ context.Context, streamID string, status model.StreamStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[streamID]
	if !ok {
		return model.ErrNotFound
	}
	stream.Status = status
	return nil
}

// CreateArtifact inserts a new artifact at version 0.
func (m *Memory) CreateArtifact(_ context.Context, artifact *model.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *artifact
	a.CurrentVersion = 0
	a.Status = model.ArtifactActive
	m.artifacts[a.ID] = &a
	return nil
}

// GetArtifact fetches an artifact by ID, including soft-deleted ones.
func (m *Memory) GetArtifact(_ context.Context, id string) (*model.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	a := *artifact
	return &a, nil
}

// CreateVersion claims the next version number under the store lock and
// appends the immutable version row.
func (m *Memory) CreateVersion(_ context.Context, artifactID, content, authorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[artifactID]
	if !ok {
		return 0, model.ErrNotFound
	}
	artifact.CurrentVersion++
	artifact.UpdatedAt = time.Now()
	version := model.ArtifactVersion{
		ArtifactID: artifactID,
		Version:    artifact.CurrentVersion,
		Content:    content,
		AuthorID:   authorID,
		CreatedAt:  time.Now(),
	}
	m.versions[artifactID] = append(m.versions[artifactID], version)
	return version.Version, nil
}

// GetVersion returns the requested version, or the latest when version <= 0.
func (m *Memory) GetVersion(_ context.Context, artifactID string, version int) (*model.ArtifactVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[artifactID]
	if len(versions) == 0 {
		return nil, model.ErrNotFound
	}
	if version <= 0 {
		v := versions[len(versions)-1]
		return &v, nil
	}
	idx := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if idx == len(versions) || versions[idx].Version != version {
		return nil, model.ErrNotFound
	}
	v := versions[idx]
	return &v, nil
}

// ListVersions returns all versions for the artifact, oldest first.
func (m *Memory) ListVersions(_ context.Context, artifactID string) ([]model.ArtifactVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[artifactID]; !ok {
		return nil, model.ErrNotFound
	}
	versions := m.versions[artifactID]
	out := make([]model.ArtifactVersion, len(versions))
	copy(out, versions)
	return out, nil
}

// SoftDelete marks the artifact deleted.
func (m *Memory) SoftDelete(_ context.Context, artifactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[artifactID]
	if !ok {
		return model.ErrNotFound
	}
	now := time.Now()
	artifact.Status = model.ArtifactDeleted
	artifact.DeletedAt = &now
	artifact.UpdatedAt = now
	return nil
}

// Restore clears the deleted marker.
func (m *Memory) Restore(_ context.Context, artifactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[artifactID]
	if !ok {
		return model.ErrNotFound
	}
	artifact.Status = model.ArtifactActive
	artifact.DeletedAt = nil
	artifact.UpdatedAt = time.Now()
	return nil
}
