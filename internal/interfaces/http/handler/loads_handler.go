package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/logger"
)

// LoadsAPIHandler отдает грузы из реестра и медиа, загруженные по ним
type LoadsAPIHandler struct {
	listLoads   *usecase.ListLoadsUseCase
	listMedia   *usecase.ListLoadMediaUseCase
	deleteMedia *usecase.DeleteLoadMediaUseCase
	logger      *logger.Logger
}

func NewLoadsAPIHandler(
	listLoads *usecase.ListLoadsUseCase,
	listMedia *usecase.ListLoadMediaUseCase,
	deleteMedia *usecase.DeleteLoadMediaUseCase,
	log *logger.Logger,
) *LoadsAPIHandler {
	return &LoadsAPIHandler{
		listLoads:   listLoads,
		listMedia:   listMedia,
		deleteMedia: deleteMedia,
		logger:      log,
	}
}

type loadResponse struct {
	ID         string    `json:"id"`
	LoadNumber string    `json:"load_number"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Completion string    `json:"completion"`
	CanCapture bool      `json:"can_capture"`
	CreatedAt  time.Time `json:"created_at"`
}

type loadMediaResponse struct {
	Key          string    `json:"key"`
	Step         int       `json:"step"`
	Kind         string    `json:"kind"`
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// ListLoads: GET /api/v1/loads?user_id=
func (h *LoadsAPIHandler) ListLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := h.listLoads.Execute(r.Context(), usecase.ListLoadsCommand{
		UserID: r.URL.Query().Get("user_id"),
	})
	if err != nil {
		http.Error(w, "Failed to fetch loads", http.StatusBadGateway)
		return
	}

	items := make([]loadResponse, 0, len(loads))
	for _, load := range loads {
		items = append(items, loadResponse{
			ID:         load.ID,
			LoadNumber: load.LoadNumber,
			UserID:     load.UserID,
			UserName:   load.UserName,
			Completion: load.Completion.String(),
			CanCapture: !load.Completion.BlocksCapture(),
			CreatedAt:  load.CreatedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"loads": items,
		"count": len(items),
	})
}

// ListMedia: GET /api/v1/loads/{key}/media?ttl_seconds=
func (h *LoadsAPIHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 || seconds > 7*24*3600 {
			writeError(w, &usecase.ValidationError{Problems: []string{"ttl_seconds must be between 1 and 604800"}})
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	result, err := h.listMedia.Execute(r.Context(), usecase.ListLoadMediaCommand{
		LoadKey: r.PathValue("key"),
		URLTTL:  ttl,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]loadMediaResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, loadMediaResponse(item))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"load_key": result.LoadKey,
		"items":    items,
		"count":    len(items),
	})
}

// DeleteMedia: DELETE /api/v1/loads/{key}/media[?key=] удаляет один объект или все медиа груза.
func (h *LoadsAPIHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.deleteMedia.Execute(r.Context(), usecase.DeleteLoadMediaCommand{
		LoadKey: r.PathValue("key"),
		Key:     r.URL.Query().Get("key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
	})
}
