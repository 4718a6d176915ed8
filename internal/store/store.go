// Package store provides persistence for conversations, generation
// streams, artifacts, and artifact versions.
package store

import (
	"context"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

// ConversationStore persists conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
}

// StreamRegistry is the durable, append-only association of generation
// streams to a conversation, in creation order.
type StreamRegistry interface {
	// Append creates and persists a new stream record for the
	// conversation, bound to the artifact whose next version the stream
	// will produce. The caller must already be authorized for the
	// conversation.
	Append(ctx context.Context, conversationID, artifactID string) (*model.GenerationStream, error)

	// List returns stream IDs for the conversation, oldest first.
	List(ctx context.Context, conversationID string) ([]string, error)

	// MostRecent returns the newest stream for the conversation, or
	// model.ErrNotFound when no stream has ever been registered.
	MostRecent(ctx context.Context, conversationID string) (*model.GenerationStream, error)

	// SetStatus transitions a stream's lifecycle status.
	SetStatus(ctx context.Context, streamID string, status model.StreamStatus) error
}

// ArtifactStore is the durable, append-only version history per artifact.
type ArtifactStore interface {
	// CreateArtifact inserts a new artifact at version 0; the first
	// CreateVersion call brings it to version 1.
	CreateArtifact(ctx context.Context, artifact *model.Artifact) error

	// GetArtifact returns the artifact regardless of its deletion status,
	// so that soft-deleted artifacts remain fetchable for restore.
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)

	// CreateVersion atomically claims the next version number for the
	// artifact and inserts the immutable version row. Concurrent callers
	// for the same artifact receive distinct, contiguous numbers.
	CreateVersion(ctx context.Context, artifactID, content, authorID string) (int, error)

	// GetVersion returns the given version, or the latest when version <= 0.
	GetVersion(ctx context.Context, artifactID string, version int) (*model.ArtifactVersion, error)

	// ListVersions returns all versions for the artifact, oldest first.
	ListVersions(ctx context.Context, artifactID string) ([]model.ArtifactVersion, error)

	// SoftDelete marks the artifact deleted. Version history is retained.
	SoftDelete(ctx context.Context, artifactID string) error

	// Restore clears the deleted marker.
	Restore(ctx context.Context, artifactID string) error
}
