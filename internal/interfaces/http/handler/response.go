package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dreschagin/securecam/internal/application/capture"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/infrastructure/device"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
)

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// statusFor сопоставляет ошибки приложения с HTTP статусами.
func statusFor(err error) int {
	var validationErr *usecase.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrInvalidState),
		errors.Is(err, apperror.ErrLoadAlreadyCompleted),
		errors.Is(err, device.ErrFramePending):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrSessionNotFound),
		errors.Is(err, apperror.ErrLoadNotFound),
		errors.Is(err, apperror.ErrMediaNotFound):
		return http.StatusNotFound
	case errors.Is(err, device.ErrMediaTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, device.ErrEmptyMedia):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrInsufficientSpace),
		errors.Is(err, apperror.ErrStorageNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperror.ErrBatchTotalFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var validationErr *usecase.ValidationError
	if errors.As(err, &validationErr) {
		resp.Problems = validationErr.Problems
	}
	middleware.WriteJSON(w, statusFor(err), resp)
}

// readLimited читает тело запроса не больше limit байт.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, device.ErrMediaTooLarge
	}
	return data, nil
}

type artifactResponse struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	LocalURI        string    `json:"local_uri"`
	CapturedAt      time.Time `json:"captured_at"`
	StepIndex       int       `json:"step_index"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	Muted           *bool     `json:"muted,omitempty"`
	LoadID          string    `json:"load_id,omitempty"`
	LoadNumber      string    `json:"load_number,omitempty"`
	SizeBytes       int64     `json:"size_bytes"`
}

func toArtifactResponse(a entity.MediaArtifact) artifactResponse {
	return artifactResponse{
		ID:              a.ID,
		Kind:            a.Kind.String(),
		LocalURI:        a.LocalURI,
		CapturedAt:      a.CapturedAt,
		StepIndex:       a.StepIndex,
		DurationSeconds: a.DurationSeconds,
		Muted:           a.Muted,
		LoadID:          a.LoadID,
		LoadNumber:      a.LoadNumber,
		SizeBytes:       a.SizeBytes,
	}
}

type outcomeResponse struct {
	MediaID        string `json:"media_id"`
	StepIndex      int    `json:"step_index"`
	Kind           string `json:"kind"`
	Success        bool   `json:"success"`
	RemoteKey      string `json:"remote_key,omitempty"`
	RemoteLocation string `json:"remote_location,omitempty"`
	Checksum       string `json:"checksum,omitempty"`
	Error          string `json:"error,omitempty"`
}

type batchResultResponse struct {
	Total          int               `json:"total"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
	OverallSuccess bool              `json:"overall_success"`
	Partial        bool              `json:"partial"`
	Successes      []outcomeResponse `json:"successes"`
	Failures       []outcomeResponse `json:"failures"`
}

func toOutcomes(outcomes []entity.UploadOutcome) []outcomeResponse {
	items := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, outcomeResponse{
			MediaID:        o.Artifact.ID,
			StepIndex:      o.Artifact.StepIndex,
			Kind:           o.Artifact.Kind.String(),
			Success:        o.Success,
			RemoteKey:      o.RemoteKey,
			RemoteLocation: o.RemoteLocation,
			Checksum:       o.Checksum,
			Error:          o.ErrorMessage,
		})
	}
	return items
}

func toBatchResultResponse(r *entity.BatchResult) *batchResultResponse {
	if r == nil {
		return nil
	}
	return &batchResultResponse{
		Total:          r.TotalCount,
		Succeeded:      len(r.Successes),
		Failed:         len(r.Failures),
		OverallSuccess: r.OverallSuccess,
		Partial:        r.Partial(),
		Successes:      toOutcomes(r.Successes),
		Failures:       toOutcomes(r.Failures),
	}
}

type stepResponse struct {
	Number      int    `json:"number"`
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type sessionResponse struct {
	SessionID       string               `json:"session_id"`
	LoadID          string               `json:"load_id,omitempty"`
	LoadNumber      string               `json:"load_number,omitempty"`
	LoadKey         string               `json:"load_key,omitempty"`
	State           capture.State        `json:"state"`
	StepIndex       int                  `json:"step_index"`
	TotalSteps      int                  `json:"total_steps"`
	Step            *stepResponse        `json:"step,omitempty"`
	ElapsedSeconds  int                  `json:"elapsed_seconds"`
	MaxVideoSeconds int                  `json:"max_video_seconds"`
	Muted           bool                 `json:"muted"`
	Artifacts       []artifactResponse   `json:"artifacts"`
	UploadPercent   int                  `json:"upload_percent"`
	Result          *batchResultResponse `json:"result,omitempty"`
	LastError       string               `json:"last_error,omitempty"`
	Warning         string               `json:"warning,omitempty"`
}

func toSessionResponse(s capture.Snapshot) sessionResponse {
	resp := sessionResponse{
		SessionID:       s.SessionID,
		LoadID:          s.LoadID,
		LoadNumber:      s.LoadNumber,
		LoadKey:         s.LoadKey,
		State:           s.State,
		StepIndex:       s.StepIndex,
		TotalSteps:      s.TotalSteps,
		ElapsedSeconds:  s.ElapsedSeconds,
		MaxVideoSeconds: s.MaxVideoSeconds,
		Muted:           s.Muted,
		Artifacts:       make([]artifactResponse, 0, len(s.Artifacts)),
		UploadPercent:   s.UploadPercent,
		Result:          toBatchResultResponse(s.Result),
		LastError:       s.LastError,
		Warning:         s.Warning,
	}
	if s.Step.Kind != "" {
		resp.Step = &stepResponse{
			Number:      s.Step.Number(),
			Kind:        s.Step.Kind.String(),
			Label:       s.Step.Label,
			Description: s.Step.Description,
		}
	}
	for _, a := range s.Artifacts {
		resp.Artifacts = append(resp.Artifacts, toArtifactResponse(a))
	}
	return resp
}

// sessionErrorResponse отдает ошибку вместе с состоянием сессии,
// чтобы клиент мог показать экран отказа или повтора.
type sessionErrorResponse struct {
	Error   string          `json:"error"`
	Session sessionResponse `json:"session"`
}

func writeSessionError(w http.ResponseWriter, err error, snapshot capture.Snapshot) {
	middleware.WriteJSON(w, statusFor(err), sessionErrorResponse{
		Error:   err.Error(),
		Session: toSessionResponse(snapshot),
	})
}
