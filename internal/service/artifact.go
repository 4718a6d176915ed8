// Package service provides business logic for the artifact platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/draftwell-ai/artifact-platform/internal/broker"
	"github.com/draftwell-ai/artifact-platform/internal/executor"
	"github.com/draftwell-ai/artifact-platform/internal/genai"
	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/internal/store"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
)

// ResumeMode is selected once at process startup; the fallback decision
// is observable rather than an inline conditional per request.
type ResumeMode string

const (
	// ModeResumable attaches reconnecting clients to the live broker.
	ModeResumable ResumeMode = "resumable"
	// ModeSnapshot serves the last persisted version within the window
	// when the resumable transport is unavailable.
	ModeSnapshot ResumeMode = "snapshot"
)

// ResumeResult is the outcome of a resume request.
type ResumeResult struct {
	// Sub yields the remaining delta events; nil when Empty.
	Sub *broker.Subscription

	// Snapshot, when set, is a single synthesized terminal event to
	// deliver instead of a live subscription (snapshot-mode fallback).
	Snapshot *model.DeltaEvent

	// Empty means there is nothing to resume; a successful, empty result.
	Empty bool
}

// ArtifactService orchestrates generations, resumption, and version
// access on top of the stores, broker, and executor.
type ArtifactService struct {
	conversations store.ConversationStore
	registry      store.StreamRegistry
	artifacts     store.ArtifactStore
	broker        *broker.Broker
	executor      *executor.Executor
	mode          ResumeMode
	window        time.Duration
	logger        *logger.Logger
}

// NewArtifactService creates the service. mode is decided once at startup.
func NewArtifactService(
	conversations store.ConversationStore,
	registry store.StreamRegistry,
	artifacts store.ArtifactStore,
	b *broker.Broker,
	exec *executor.Executor,
	mode ResumeMode,
	window time.Duration,
	log *logger.Logger,
) *ArtifactService {
	return &ArtifactService{
		conversations: conversations,
		registry:      registry,
		artifacts:     artifacts,
		broker:        b,
		executor:      exec,
		mode:          mode,
		window:        window,
		logger:        log,
	}
}

// Mode returns the resume mode selected at startup.
func (s *ArtifactService) Mode() ResumeMode {
	return s.mode
}

// CreateConversation creates a conversation owned by the user.
func (s *ArtifactService) CreateConversation(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	visibility := req.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	now := time.Now()
	conv := &model.Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		OwnerID:    userID,
		Title:      req.Title,
		Visibility: visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation the user may read.
func (s *ArtifactService) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanRead(userID) {
		return nil, model.ErrForbidden
	}
	return conv, nil
}

// Generate starts a generation stream for the conversation. When the
// request names no artifact, a new one is created at version 0; the
// stream's completion writes version 1.
func (s *ArtifactService) Generate(ctx context.Context, userID, conversationID string, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, model.ErrForbidden
	}

	var artifact *model.Artifact
	if req.ArtifactID != "" {
		artifact, err = s.artifacts.GetArtifact(ctx, req.ArtifactID)
		if err != nil {
			return nil, err
		}
		if artifact.OwnerID != userID {
			return nil, model.ErrForbidden
		}
	} else {
		kind := req.Kind
		if kind == "" {
			kind = model.KindText
		}
		artifact = &model.Artifact{
			ID:        uuid.Must(uuid.NewV7()).String(),
			OwnerID:   userID,
			Kind:      kind,
			Title:     req.Title,
			CreatedAt: time.Now(),
		}
		if err := s.artifacts.CreateArtifact(ctx, artifact); err != nil {
			return nil, fmt.Errorf("failed to create artifact: %w", err)
		}
	}

	genReq := &genai.Request{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     []genai.ChatMessage{{Role: "user", Content: req.Prompt}},
	}
	streamID, err := s.executor.Start(ctx, conversationID, artifact, userID, genReq)
	if err != nil {
		return nil, err
	}

	return &model.GenerateResponse{StreamID: streamID, ArtifactID: artifact.ID}, nil
}

// Resume reattaches a client to the most recent stream of the
// conversation. Within the resumption window it yields the remaining
// events or one synthesized terminal event; past the window it returns
// an empty success. No registered stream at all is not_found.
func (s *ArtifactService) Resume(ctx context.Context, userID, conversationID string, fromSeq uint64) (*ResumeResult, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanRead(userID) {
		return nil, model.ErrForbidden
	}

	stream, err := s.registry.MostRecent(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if s.mode == ModeSnapshot {
		return s.snapshotResume(ctx, stream)
	}

	sub, err := s.broker.Subscribe(ctx, stream.ID, fromSeq)
	switch {
	case err == nil:
		return &ResumeResult{Sub: sub}, nil
	case errors.Is(err, broker.ErrResumeExpired):
		return &ResumeResult{Empty: true}, nil
	case errors.Is(err, broker.ErrStreamNotFound):
		// The registry knows the stream, so it existed; the broker has
		// already evicted it past the window.
		return &ResumeResult{Empty: true}, nil
	default:
		return nil, err
	}
}

// snapshotResume is the fallback path when the resumable transport is
// unavailable: serve the last persisted version of the stream's
// artifact if it was written within the window, else an empty success.
func (s *ArtifactService) snapshotResume(ctx context.Context, stream *model.GenerationStream) (*ResumeResult, error) {
	version, err := s.artifacts.GetVersion(ctx, stream.ArtifactID, 0)
	if errors.Is(err, model.ErrNotFound) {
		return &ResumeResult{Empty: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(version.CreatedAt) > s.window {
		return &ResumeResult{Empty: true}, nil
	}
	s.logger.Info("serving snapshot resume", "stream_id", stream.ID, "version", version.Version)
	return &ResumeResult{
		Snapshot: &model.DeltaEvent{
			StreamID:  stream.ID,
			Type:      model.DeltaText,
			Payload:   version.Content,
			Terminal:  true,
			CreatedAt: version.CreatedAt,
		},
	}, nil
}

// GetArtifact returns artifact metadata, including soft-deleted
// artifacts so they can be restored.
func (s *ArtifactService) GetArtifact(ctx context.Context, userID, artifactID string) (*model.Artifact, error) {
	artifact, err := s.artifacts.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.OwnerID != userID {
		return nil, model.ErrForbidden
	}
	return artifact, nil
}

// GetVersion returns a version's content; version <= 0 means latest.
func (s *ArtifactService) GetVersion(ctx context.Context, userID, artifactID string, version int) (*model.ArtifactVersion, error) {
	if _, err := s.GetArtifact(ctx, userID, artifactID); err != nil {
		return nil, err
	}
	return s.artifacts.GetVersion(ctx, artifactID, version)
}

// ListVersions returns the artifact's full version history.
func (s *ArtifactService) ListVersions(ctx context.Context, userID, artifactID string) (*model.ListVersionsResponse, error) {
	artifact, err := s.GetArtifact(ctx, userID, artifactID)
	if err != nil {
		return nil, err
	}
	versions, err := s.artifacts.ListVersions(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return &model.ListVersionsResponse{
		ArtifactID: artifactID,
		Versions:   versions,
		Current:    artifact.CurrentVersion,
	}, nil
}

// DeleteArtifact soft deletes; version history is retained.
func (s *ArtifactService) DeleteArtifact(ctx context.Context, userID, artifactID string) error {
	if _, err := s.GetArtifact(ctx, userID, artifactID); err != nil {
		return err
	}
	return s.artifacts.SoftDelete(ctx, artifactID)
}

// RestoreArtifact reverses a soft delete.
func (s *ArtifactService) RestoreArtifact(ctx context.Context, userID, artifactID string) error {
	if _, err := s.GetArtifact(ctx, userID, artifactID); err != nil {
		return err
	}
	return s.artifacts.Restore(ctx, artifactID)
}
