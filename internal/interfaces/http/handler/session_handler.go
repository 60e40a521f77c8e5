package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dreschagin/securecam/internal/application/capture"
	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/logger"
)

const maxJSONBodyBytes = 64 << 10

// SessionManager is the part of capture.Manager the HTTP layer needs.
type SessionManager interface {
	Create(req capture.CreateSessionRequest) (*capture.Session, error)
	Get(id string) (*capture.Session, error)
	Remove(id string) error
}

// remoteRig - устройство сессии, которому клиент присылает снятые файлы и статусы разрешений.
type remoteRig interface {
	SetPermission(capability port.Capability, status port.PermissionStatus)
	Feed(ctx context.Context, kind valueobject.MediaKind, body io.Reader) (port.CapturedFile, error)
	Discard(kind valueobject.MediaKind) bool
}

// SessionAPIHandler управляет сессиями съемки
type SessionAPIHandler struct {
	sessions      SessionManager
	maxMediaBytes int64
	logger        *logger.Logger
}

func NewSessionAPIHandler(sessions SessionManager, maxMediaBytes int64, log *logger.Logger) *SessionAPIHandler {
	return &SessionAPIHandler{
		sessions:      sessions,
		maxMediaBytes: maxMediaBytes,
		logger:        log,
	}
}

type permissionsRequest struct {
	Camera     string `json:"camera"`
	Microphone string `json:"microphone"`
}

type createSessionRequest struct {
	LoadID     string `json:"load_id"`
	LoadNumber string `json:"load_number"`
	permissionsRequest
}

type artifactCreatedResponse struct {
	Artifact artifactResponse `json:"artifact"`
	Session  sessionResponse  `json:"session"`
}

// Create создает сессию и сразу запускает проверку груза и разрешений.
func (h *SessionAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Create(capture.CreateSessionRequest{
		LoadID:     req.LoadID,
		LoadNumber: req.LoadNumber,
	})
	if err != nil {
		h.logger.Error("Failed to create capture session", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if err := applyPermissions(session, req.permissionsRequest); err != nil {
		_ = h.sessions.Remove(session.ID)
		writeError(w, err)
		return
	}

	if err := session.Sequencer.Start(r.Context()); err != nil {
		writeSessionError(w, err, session.Sequencer.Snapshot())
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, toSessionResponse(session.Sequencer.Snapshot()))
}

func (h *SessionAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSessionResponse(session.Sequencer.Snapshot()))
}

// Permissions обновляет статусы от клиента и повторяет запрос доступа к камере.
func (h *SessionAPIHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := applyPermissions(session, req); err != nil {
		writeError(w, err)
		return
	}

	if session.Sequencer.Snapshot().State == capture.StatePermissionDenied {
		if err := session.Sequencer.RequestPermission(r.Context()); err != nil {
			writeSessionError(w, err, session.Sequencer.Snapshot())
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, toSessionResponse(session.Sequencer.Snapshot()))
}

// Photo принимает JPEG текущего шага. На последнем шаге ответ приходит после загрузки.
func (h *SessionAPIHandler) Photo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if state := session.Sequencer.Snapshot().State; state != capture.StateReady {
		writeSessionError(w, fmt.Errorf("%w: cannot take photo in %s", apperror.ErrInvalidState, state), session.Sequencer.Snapshot())
		return
	}
	if !h.feed(w, r, session, valueobject.Photo) {
		return
	}

	artifact, err := session.Sequencer.CapturePhoto(r.Context())
	if err != nil {
		h.discard(session, valueobject.Photo)
	}
	h.writeArtifact(w, session, artifact, err)
}

func (h *SessionAPIHandler) StartVideo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Sequencer.StartRecording(r.Context()); err != nil {
		writeSessionError(w, err, session.Sequencer.Snapshot())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSessionResponse(session.Sequencer.Snapshot()))
}

// StopVideo принимает записанный MP4 и останавливает запись.
func (h *SessionAPIHandler) StopVideo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if state := session.Sequencer.Snapshot().State; state != capture.StateRecording {
		writeSessionError(w, fmt.Errorf("%w: not recording (%s)", apperror.ErrInvalidState, state), session.Sequencer.Snapshot())
		return
	}
	if !h.feed(w, r, session, valueobject.Video) {
		return
	}

	artifact, err := session.Sequencer.StopRecording(r.Context())
	if err != nil {
		h.discard(session, valueobject.Video)
	}
	h.writeArtifact(w, session, artifact, err)
}

// Retry повторяет загрузку упавших элементов последнего батча.
func (h *SessionAPIHandler) Retry(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.Sequencer.RetryFailedUploads(r.Context()); err != nil {
		writeSessionError(w, err, session.Sequencer.Snapshot())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toSessionResponse(session.Sequencer.Snapshot()))
}

func (h *SessionAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Remove(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionAPIHandler) session(w http.ResponseWriter, r *http.Request) (*capture.Session, bool) {
	session, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return session, true
}

func (h *SessionAPIHandler) feed(w http.ResponseWriter, r *http.Request, session *capture.Session, kind valueobject.MediaKind) bool {
	rig, ok := session.Rig.(remoteRig)
	if !ok {
		http.Error(w, "capture device does not accept uploads", http.StatusNotImplemented)
		return false
	}

	body := r.Body
	if h.maxMediaBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxMediaBytes+1)
	}
	defer body.Close()

	if _, err := rig.Feed(r.Context(), kind, body); err != nil {
		h.logger.Warn("Rejected media upload",
			"session_id", session.ID,
			"kind", kind.String(),
			"error", err.Error(),
		)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, err)
		return false
	}
	return true
}

// discard убирает присланный файл, если действие упало до того, как его забрало.
func (h *SessionAPIHandler) discard(session *capture.Session, kind valueobject.MediaKind) {
	rig, ok := session.Rig.(remoteRig)
	if !ok {
		return
	}
	if rig.Discard(kind) {
		h.logger.Info("Discarded unconsumed media", "session_id", session.ID, "kind", kind.String())
	}
}

// writeArtifact отвечает снятым артефактом. Ошибка загрузки после последнего шага
// отдается вместе с сессией: в result видно, какие элементы упали.
func (h *SessionAPIHandler) writeArtifact(w http.ResponseWriter, session *capture.Session, artifact entity.MediaArtifact, err error) {
	snapshot := session.Sequencer.Snapshot()
	if err != nil {
		h.logger.Warn("Capture step finished with error", "session_id", session.ID, "error", err.Error())
		writeSessionError(w, err, snapshot)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, artifactCreatedResponse{
		Artifact: toArtifactResponse(artifact),
		Session:  toSessionResponse(snapshot),
	})
}

func applyPermissions(session *capture.Session, req permissionsRequest) error {
	rig, ok := session.Rig.(remoteRig)
	if !ok {
		return nil
	}

	camera, err := parsePermission(req.Camera)
	if err != nil {
		return err
	}
	microphone, err := parsePermission(req.Microphone)
	if err != nil {
		return err
	}
	rig.SetPermission(port.CapabilityCamera, camera)
	rig.SetPermission(port.CapabilityMicrophone, microphone)
	return nil
}

// parsePermission: пустая строка означает "без изменений".
func parsePermission(raw string) (port.PermissionStatus, error) {
	switch status := port.PermissionStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case "", port.PermissionGranted, port.PermissionDenied, port.PermissionUndetermined:
		return status, nil
	default:
		return "", &usecase.ValidationError{Problems: []string{fmt.Sprintf("unknown permission status %q", raw)}}
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	data, err := readLimited(r.Body, maxJSONBodyBytes)
	if err != nil {
		return &usecase.ValidationError{Problems: []string{"request body is too large"}}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &usecase.ValidationError{Problems: []string{"invalid JSON body"}}
	}
	return nil
}
