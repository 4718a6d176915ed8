package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/draftwell-ai/artifact-platform/internal/cache"
	"github.com/draftwell-ai/artifact-platform/internal/middleware"
	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/internal/service"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
)

// ArtifactHandler handles artifact and version endpoints.
type ArtifactHandler struct {
	service *service.ArtifactService
	cache   *cache.VersionCache
	logger  *logger.Logger
}

// NewArtifactHandler creates a new artifact handler.
func NewArtifactHandler(svc *service.ArtifactService, vc *cache.VersionCache, log *logger.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		service: svc,
		cache:   vc,
		logger:  log,
	}
}

// Get handles GET /api/v1/artifacts/:id
func (h *ArtifactHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	artifact, err := h.service.GetArtifact(ctx, userID, artifactID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, artifact)
}

// ListVersions handles GET /api/v1/artifacts/:id/versions
//
// The first page is served through the version cache; concurrent
// requests for the same artifact coalesce into one store fetch.
func (h *ArtifactHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.cache.Preload(ctx, userID+":"+artifactID, func(ctx context.Context) ([]model.ArtifactVersion, int, error) {
		resp, err := h.service.ListVersions(ctx, userID, artifactID)
		if err != nil {
			return nil, 0, err
		}
		return resp.Versions, resp.Current - 1, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ListVersionsResponse{
		ArtifactID: artifactID,
		Versions:   entry.Versions,
		Current:    entry.CurrentIndex + 1,
	})
}

// GetVersion handles GET /api/v1/artifacts/:id/versions/:version
func (h *ArtifactHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	version := 0
	if v := chi.URLParam(r, "version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid version number")
			return
		}
		version = parsed
	}

	content, err := h.service.GetVersion(ctx, userID, artifactID, version)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// GetLatest handles GET /api/v1/artifacts/:id/content
func (h *ArtifactHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := h.service.GetVersion(ctx, userID, artifactID, 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// Delete handles DELETE /api/v1/artifacts/:id (soft delete).
func (h *ArtifactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.DeleteArtifact(ctx, userID, artifactID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.cache.Invalidate(userID + ":" + artifactID)

	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/v1/artifacts/:id/restore
func (h *ArtifactHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RestoreArtifact(ctx, userID, artifactID); err != nil {
		writeDomainError(w, err)
		return
	}

	artifact, err := h.service.GetArtifact(ctx, userID, artifactID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
