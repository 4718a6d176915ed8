// Package executor drives generation streams. An executor task is
// detached from any client connection: once started it runs to
// completion, emitting ordered delta events through the broker and
// finalizing an artifact version.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/draftwell-ai/artifact-platform/internal/broker"
	"github.com/draftwell-ai/artifact-platform/internal/config"
	"github.com/draftwell-ai/artifact-platform/internal/dedup"
	"github.com/draftwell-ai/artifact-platform/internal/genai"
	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/internal/store"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

// Notifier forwards artifact-changed notifications downstream at most
// once. Satisfied by *dedup.Gate.
type Notifier interface {
	PublishOnce(ctx context.Context, messageID string, payload []byte) (dedup.Result, error)
}

// Executor starts and runs generation tasks.
type Executor struct {
	registry  store.StreamRegistry
	artifacts store.ArtifactStore
	broker    *broker.Broker
	gen       genai.Client
	notifier  Notifier
	policy    config.PartialContentPolicy
	logger    *logger.Logger

	wg sync.WaitGroup
}

// New creates an executor. notifier may be nil when no downstream bus
// is configured.
func New(
	registry store.StreamRegistry,
	artifacts store.ArtifactStore,
	b *broker.Broker,
	gen genai.Client,
	notifier Notifier,
	policy config.PartialContentPolicy,
	log *logger.Logger,
) *Executor {
	return &Executor{
		registry:  registry,
		artifacts: artifacts,
		broker:    b,
		gen:       gen,
		notifier:  notifier,
		policy:    policy,
		logger:    log,
	}
}

// Start registers a stream for the conversation and launches the
// generation task. The returned stream ID can be subscribed to
// immediately; the task itself outlives the caller's context.
func (e *Executor) Start(ctx context.Context, conversationID string, artifact *model.Artifact, authorID string, req *genai.Request) (string, error) {
	if e.gen == nil {
		return "", fmt.Errorf("no generation client configured")
	}

	stream, err := e.registry.Append(ctx, conversationID, artifact.ID)
	if err != nil {
		return "", err
	}

	producer, err := e.broker.OpenStream(stream.ID)
	if err != nil {
		return "", fmt.Errorf("failed to open broker stream: %w", err)
	}

	// The task must survive client disconnects; there is no
	// cancellation path once generation has started.
	taskCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(taskCtx, stream.ID, producer, artifact, authorID, req)
	}()

	return stream.ID, nil
}

// Wait blocks until all in-flight generation tasks have finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context, streamID string, producer *broker.Producer, artifact *model.Artifact, authorID string, req *genai.Request) {
	start := time.Now()
	deltaType := deltaTypeFor(artifact.Kind)

	result, err := e.gen.GenerateStream(ctx, req, func(fragment string, _ int) error {
		producer.Publish(deltaType, fragment)
		metrics.DeltaEventsTotal.WithLabelValues(string(artifact.Kind)).Inc()
		return nil
	})
	if err != nil {
		e.finishFailed(ctx, streamID, producer, artifact, authorID, err, start)
		return
	}

	version, err := e.artifacts.CreateVersion(ctx, artifact.ID, result.Content, authorID)
	if err != nil {
		e.logger.Error("failed to persist version",
			"stream_id", streamID, "artifact_id", artifact.ID, "error", err)
		e.finishFailed(ctx, streamID, producer, artifact, authorID, err, start)
		return
	}

	if err := e.registry.SetStatus(ctx, streamID, model.StreamCompleted); err != nil {
		e.logger.Warn("failed to mark stream completed", "stream_id", streamID, "error", err)
	}
	producer.Close(result.Content, false)

	metrics.VersionsWrittenTotal.WithLabelValues(string(artifact.Kind)).Inc()
	metrics.RecordGeneration(string(artifact.Kind), "success", time.Since(start).Seconds())
	e.logger.Info("generation completed",
		"stream_id", streamID, "artifact_id", artifact.ID, "version", version)

	e.notify(ctx, artifact, version)
}

// finishFailed marks the stream failed and applies the partial-content
// policy to whatever the generation produced before erroring.
func (e *Executor) finishFailed(ctx context.Context, streamID string, producer *broker.Producer, artifact *model.Artifact, authorID string, cause error, start time.Time) {
	if err := e.registry.SetStatus(ctx, streamID, model.StreamFailed); err != nil {
		e.logger.Warn("failed to mark stream failed", "stream_id", streamID, "error", err)
	}

	partial := producer.Accumulated()
	if e.policy == config.PartialPersist && partial != "" {
		version, err := e.artifacts.CreateVersion(ctx, artifact.ID, partial, authorID)
		if err != nil {
			e.logger.Error("failed to persist partial content",
				"stream_id", streamID, "artifact_id", artifact.ID, "error", err)
		} else {
			metrics.VersionsWrittenTotal.WithLabelValues(string(artifact.Kind)).Inc()
			e.logger.Info("partial content persisted",
				"stream_id", streamID, "artifact_id", artifact.ID, "version", version)
			e.notify(ctx, artifact, version)
		}
		producer.Close(partial, true)
	} else {
		producer.Close("", true)
	}

	metrics.RecordGeneration(string(artifact.Kind), "failed", time.Since(start).Seconds())
	e.logger.Error("generation failed",
		"stream_id", streamID, "artifact_id", artifact.ID, "error", cause)
}

func (e *Executor) notify(ctx context.Context, artifact *model.Artifact, version int) {
	if e.notifier == nil {
		return
	}
	event := model.ArtifactChangedEvent{
		MessageID:  fmt.Sprintf("%s.v%d", artifact.ID, version),
		ArtifactID: artifact.ID,
		Version:    version,
		Kind:       artifact.Kind,
		OccurredAt: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to marshal change event", "artifact_id", artifact.ID, "error", err)
		return
	}
	if _, err := e.notifier.PublishOnce(ctx, event.MessageID, payload); err != nil {
		// The gate already logged the delivery loss; nothing to retry.
		return
	}
}

func deltaTypeFor(kind model.Kind) model.DeltaType {
	switch kind {
	case model.KindCode:
		return model.DeltaCodePatch
	case model.KindImage:
		return model.DeltaImage
	default:
		return model.DeltaText
	}
}
