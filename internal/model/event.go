package model

import (
	"time"
)

// DeltaType identifies the payload carried by a delta event.
type DeltaType string

const (
	DeltaText      DeltaType = "text"
	DeltaCodePatch DeltaType = "code_patch"
	DeltaImage     DeltaType = "image"
)

// DeltaEvent is one incremental fragment of a streamed generation.
// Sequence numbers are 0-based and strictly monotonic per stream.
// Terminal events carry the complete final content so that late
// subscribers do not need a token-by-token replay.
type DeltaEvent struct {
	StreamID  string    `json:"stream_id"`
	Sequence  uint64    `json:"sequence"`
	Type      DeltaType `json:"type"`
	Payload   string    `json:"payload"`
	Terminal  bool      `json:"terminal"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactChangedEvent is the payload forwarded to the downstream bus
// when a new version has been written. MessageID is deterministic per
// (artifact, version) so retries dedupe to a single delivery.
type ArtifactChangedEvent struct {
	MessageID  string    `json:"message_id"`
	ArtifactID string    `json:"artifact_id"`
	Version    int       `json:"version"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrorEvent represents an error frame on the client transport.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a keep-alive frame.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
