package model

import (
	"time"
)

// StreamStatus is the lifecycle state of a generation stream.
type StreamStatus string

const (
	StreamActive    StreamStatus = "active"
	StreamCompleted StreamStatus = "completed"
	StreamFailed    StreamStatus = "failed"
	StreamExpired   StreamStatus = "expired"
)

// GenerationStream is the server-side record of one generation request,
// independent of any client connection's lifetime. Records are append-only;
// a stream is never deleted, only superseded by newer streams for the same
// conversation.
type GenerationStream struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	ArtifactID     string       `json:"artifact_id"`
	Status         StreamStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}
