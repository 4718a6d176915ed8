package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/draftwell-ai/artifact-platform/internal/broker"
	"github.com/draftwell-ai/artifact-platform/internal/middleware"
	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/internal/service"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

// StreamHandler handles generation and SSE streaming endpoints.
type StreamHandler struct {
	service *service.ArtifactService
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.ArtifactService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		logger:  log,
	}
}

// Generate handles POST /api/v1/conversations/:id/generate
//
// It starts a detached generation and returns immediately; the client
// follows up on GET .../stream to watch it. Closing this request does
// not cancel the generation.
func (h *StreamHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateKind(req.Kind); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Generate(ctx, userID, conversationID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("X-Stream-URL", fmt.Sprintf("/api/v1/conversations/%s/stream", conversationID))
	writeJSON(w, http.StatusAccepted, resp)
}

// Stream handles GET /api/v1/conversations/:id/stream
//
// Reattaches to the conversation's most recent generation stream.
// Supports ?from_sequence=N so a reconnecting client continues where
// it left off.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var fromSeq uint64
	if seqStr := r.URL.Query().Get("from_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			fromSeq = seq
		}
	}

	result, err := h.service.Resume(ctx, userID, conversationID, fromSeq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	if result.Empty {
		// Nothing to resume: empty, successful.
		sendSSEEvent(w, flusher, "nothing_to_resume", map[string]bool{"success": true})
		return
	}

	if result.Snapshot != nil {
		sendSSEEvent(w, flusher, "snapshot", result.Snapshot)
		sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
		return
	}

	sub := result.Sub
	defer sub.Close()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	events := make(chan model.DeltaEvent)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			evt, err := sub.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected; the generation keeps running.
			h.logger.Info("SSE client disconnected", "conversation_id", conversationID)
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()})

		case evt, ok := <-events:
			if !ok {
				err := <-errc
				if errors.Is(err, broker.ErrDone) {
					sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
				}
				return
			}
			name := "delta"
			if evt.Terminal {
				name = "finish"
			}
			sendSSEEvent(w, flusher, name, evt)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
