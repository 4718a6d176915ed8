package model

import (
	"time"
)

// Kind is the content kind of an artifact.
type Kind string

const (
	KindText     Kind = "text"
	KindCode     Kind = "code"
	KindImage    Kind = "image"
	KindSheet    Kind = "sheet"
	KindMarkdown Kind = "markdown"
)

// ArtifactStatus is the lifecycle state of an artifact.
type ArtifactStatus string

const (
	ArtifactActive  ArtifactStatus = "active"
	ArtifactDeleted ArtifactStatus = "deleted"
)

// Artifact represents a generated content object with an immutable,
// ordered version history.
type Artifact struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Kind           Kind           `json:"kind"`
	Title          string         `json:"title"`
	CurrentVersion int            `json:"current_version"`
	Status         ArtifactStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// ArtifactVersion is one immutable version of an artifact. The
// (ArtifactID, Version) pair is the identity; rows are never updated.
type ArtifactVersion struct {
	ArtifactID string    `json:"artifact_id"`
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	Summary    string    `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerateRequest is the request to start a generation for a conversation.
type GenerateRequest struct {
	ArtifactID   string `json:"artifact_id,omitempty"`
	Kind         Kind   `json:"kind,omitempty"`
	Title        string `json:"title,omitempty"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
}

// GenerateResponse is returned when a generation stream has been started.
type GenerateResponse struct {
	StreamID   string `json:"stream_id"`
	ArtifactID string `json:"artifact_id"`
}

// ListVersionsResponse is the response for listing artifact versions.
type ListVersionsResponse struct {
	ArtifactID string            `json:"artifact_id"`
	Versions   []ArtifactVersion `json:"versions"`
	Current    int               `json:"current"`
}
