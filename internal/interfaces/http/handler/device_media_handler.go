package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/logger"
)

// MediaFiles удаляет файлы медиа из spool вместе с записью.
type MediaFiles interface {
	Remove(localURI string) error
}

// DeviceMediaAPIHandler работает с локальным журналом снятых медиа
type DeviceMediaAPIHandler struct {
	store  port.MediaStore
	files  MediaFiles
	logger *logger.Logger
}

func NewDeviceMediaAPIHandler(store port.MediaStore, files MediaFiles, log *logger.Logger) *DeviceMediaAPIHandler {
	return &DeviceMediaAPIHandler{store: store, files: files, logger: log}
}

type storedMediaResponse struct {
	artifactResponse
	Uploaded   bool       `json:"uploaded"`
	RemoteKey  string     `json:"remote_key,omitempty"`
	Location   string     `json:"location,omitempty"`
	ETag       string     `json:"etag,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

type uploadStatusResponse struct {
	Total            int `json:"total"`
	Uploaded         int `json:"uploaded"`
	Pending          int `json:"pending"`
	UploadPercentage int `json:"upload_percentage"`
}

// List: GET /api/v1/device/media
func (h *DeviceMediaAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list local media", err)
		writeError(w, err)
		return
	}

	resp := make([]storedMediaResponse, 0, len(items))
	for _, item := range items {
		entry := storedMediaResponse{
			artifactResponse: toArtifactResponse(item.Artifact),
			Uploaded:         item.Uploaded(),
			RemoteKey:        item.RemoteKey,
			Location:         item.Location,
			ETag:             item.ETag,
		}
		if !item.UploadedAt.IsZero() {
			uploadedAt := item.UploadedAt
			entry.UploadedAt = &uploadedAt
		}
		resp = append(resp, entry)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"items": resp,
		"count": len(resp),
	})
}

// Status: GET /api/v1/device/media/status
func (h *DeviceMediaAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.UploadStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, uploadStatusResponse(status))
}

// Delete: DELETE /api/v1/device/media/{id}
func (h *DeviceMediaAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	items, err := h.store.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	for _, item := range items {
		if item.Artifact.ID == id {
			h.removeFile(item.Artifact.LocalURI)
			break
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear: DELETE /api/v1/device/media очищает журнал и spool-файлы.
func (h *DeviceMediaAPIHandler) Clear(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	for _, item := range items {
		h.removeFile(item.Artifact.LocalURI)
	}

	h.logger.Info("Local media cleared", "count", len(items))
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"deleted": len(items),
	})
}

func (h *DeviceMediaAPIHandler) removeFile(localURI string) {
	if h.files == nil || localURI == "" {
		return
	}
	if err := h.files.Remove(localURI); err != nil {
		h.logger.Warn("Failed to remove media file", "local_uri", localURI, "error", err.Error())
	}
}
