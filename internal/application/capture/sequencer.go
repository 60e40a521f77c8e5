package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/dreschagin/securecam/pkg/logger"
)

const (
	DefaultMaxVideoDuration = 20 * time.Second
	tickInterval            = time.Second
)

// Uploader uploads a completed artifact set.
type Uploader interface {
	Execute(ctx context.Context, cmd usecase.UploadMediaBatchCommand, observer port.ProgressObserver) (*entity.BatchResult, error)
}

type Config struct {
	SessionID  string
	LoadID     string
	LoadNumber string
	// Steps по умолчанию entity.DefaultSteps().
	Steps            []entity.CaptureStep
	MaxVideoDuration time.Duration
}

type Deps struct {
	Camera      port.Camera
	Permissions port.PermissionGate
	Uploader    Uploader
	Loads       port.LoadRegistry
	Store       port.MediaStore
	Sink        EventSink
	NewTicker   func(time.Duration) Ticker
	Now         func() time.Time
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	SessionID  string
	LoadID     string
	LoadNumber string
	// LoadKey is the object-key folder the session uploads into.
	LoadKey         string
	State           State
	StepIndex       int
	TotalSteps      int
	Step            entity.CaptureStep
	ElapsedSeconds  int
	MaxVideoSeconds int
	Muted           bool
	Artifacts       []entity.MediaArtifact
	UploadPercent   int
	Result          *entity.BatchResult
	LastError       string
	Warning         string
}

// Sequencer проводит пользователя по шагам съемки и передает собранные артефакты в загрузку.
//
// Состояние защищено мьютексом, который отпускается на время работы с камерой,
// хранилищем и загрузкой. Одновременно выполняется только одно действие;
// параллельные вызовы получают apperror.ErrInvalidState.
type Sequencer struct {
	cfg        Config
	deps       Deps
	logger     *logger.Logger
	maxSeconds int

	// ctx живет до Close: автостоп записи и загрузка не зависят от HTTP-запроса.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	stepIndex     int
	elapsed       int
	busy          bool
	closed        bool
	loadNumber    string
	loadKey       string
	muted         bool
	artifacts     []entity.MediaArtifact
	recording     port.Recording
	stopTicker    chan struct{}
	stopDone      chan struct{}
	stopArtifact  entity.MediaArtifact
	stopErr       error
	uploadPercent int
	result        *entity.BatchResult
	lastError     string
	warning       string
}

func NewSequencer(cfg Config, deps Deps, log *logger.Logger) (*Sequencer, error) {
	if deps.Camera == nil || deps.Permissions == nil {
		return nil, errors.New("camera and permission gate are required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = entity.DefaultSteps()
	}
	// 20 секунд это жесткий предел записи, конфиг может его только уменьшить.
	if cfg.MaxVideoDuration <= 0 || cfg.MaxVideoDuration > DefaultMaxVideoDuration {
		cfg.MaxVideoDuration = DefaultMaxVideoDuration
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.NewTicker == nil {
		deps.NewTicker = newRealTicker
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	maxSeconds := int(cfg.MaxVideoDuration / time.Second)
	if maxSeconds < 1 {
		maxSeconds = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		cfg:        cfg,
		deps:       deps,
		logger:     log,
		maxSeconds: maxSeconds,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
		loadNumber: cfg.LoadNumber,
	}, nil
}

// Start проверяет, что груз еще не завершен, и запрашивает доступ к камере.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(StateIdle); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	defer s.endAction()

	if err := s.checkLoad(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.transitionLocked(StateAwaitingPermission, "")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.resolveCameraPermission(ctx, false)
}

// RequestPermission повторно запрашивает доступ к камере после отказа.
func (s *Sequencer) RequestPermission(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(StatePermissionDenied); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.transitionLocked(StateAwaitingPermission, "")
	s.mu.Unlock()
	defer s.endAction()
	if err != nil {
		return err
	}

	return s.resolveCameraPermission(ctx, true)
}

// CapturePhoto снимает фото для текущего шага. Если это последний шаг,
// вызов возвращается после завершения загрузки.
func (s *Sequencer) CapturePhoto(ctx context.Context) (entity.MediaArtifact, error) {
	s.mu.Lock()
	if err := s.beginLocked(StateReady); err != nil {
		s.mu.Unlock()
		return entity.MediaArtifact{}, err
	}
	index, step, err := s.currentStepLocked(valueobject.Photo)
	if err == nil {
		err = s.transitionLocked(StateCapturing, "")
	}
	loadNumber := s.loadNumber
	s.mu.Unlock()
	defer s.endAction()
	if err != nil {
		return entity.MediaArtifact{}, err
	}

	file, err := s.deps.Camera.TakePhoto(ctx)
	var artifact entity.MediaArtifact
	if err == nil {
		artifact, err = s.newArtifact(index, step, file, loadNumber, 0, false)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", apperror.ErrCaptureFailure, err)
		s.mu.Lock()
		s.failStepLocked(err)
		s.mu.Unlock()
		s.logger.Error("Photo capture failed", err, "session_id", s.cfg.SessionID, "step", index+1)
		return entity.MediaArtifact{}, err
	}

	return artifact, s.completeStep(artifact)
}

// StartRecording начинает запись видео. Без доступа к микрофону видео пишется без звука.
func (s *Sequencer) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(StateReady); err != nil {
		s.mu.Unlock()
		return err
	}
	index, _, err := s.currentStepLocked(valueobject.Video)
	s.mu.Unlock()
	if err != nil {
		s.endAction()
		return err
	}

	muted := !s.microphoneGranted(ctx)
	rec, err := s.deps.Camera.StartRecording(ctx, port.RecordOptions{
		MaxDuration: s.cfg.MaxVideoDuration,
		Mute:        muted,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		err = fmt.Errorf("%w: %v", apperror.ErrCaptureFailure, err)
		s.lastError = err.Error()
		s.emitLocked(Event{Type: EventError, Message: err.Error()})
		s.logger.Error("Failed to start recording", err, "session_id", s.cfg.SessionID, "step", index+1)
		return err
	}

	if err := s.transitionLocked(StateRecording, ""); err != nil {
		return err
	}
	s.muted = muted
	s.elapsed = 0
	s.recording = rec
	s.stopTicker = make(chan struct{})

	if muted {
		s.warning = "microphone permission not granted, recording without audio"
		s.emitLocked(Event{Type: EventWarning, Message: s.warning})
		s.logger.Warn("Recording without audio", "session_id", s.cfg.SessionID)
	}

	go s.runTicker(s.deps.NewTicker(tickInterval), s.stopTicker)
	return nil
}

// StopRecording останавливает запись. Если запись уже останавливается
// по лимиту длительности, ждет ее завершения и возвращает тот же результат.
func (s *Sequencer) StopRecording(ctx context.Context) (entity.MediaArtifact, error) {
	return s.stopRecording(ctx)
}

// RetryFailedUploads повторяет загрузку только упавших элементов последнего батча.
// Возвращаемый результат объединяет прежние успехи с исходом повтора;
// ошибка относится к самой повторной попытке.
func (s *Sequencer) RetryFailedUploads(ctx context.Context) (*entity.BatchResult, error) {
	s.mu.Lock()
	if err := s.beginLocked(StateDone); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	previous := s.result
	if previous == nil || len(previous.Failures) == 0 {
		s.busy = false
		s.mu.Unlock()
		return previous, fmt.Errorf("%w: nothing to retry", apperror.ErrInvalidState)
	}
	pending := previous.FailedArtifacts()
	s.mu.Unlock()
	defer s.endAction()

	s.logger.Info("Retrying failed uploads", "session_id", s.cfg.SessionID, "count", len(pending))
	return s.upload(pending, previous)
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		SessionID:       s.cfg.SessionID,
		LoadID:          s.cfg.LoadID,
		LoadNumber:      s.loadNumber,
		LoadKey:         s.loadKey,
		State:           s.state,
		StepIndex:       s.stepIndex,
		TotalSteps:      len(s.cfg.Steps),
		ElapsedSeconds:  s.elapsed,
		MaxVideoSeconds: s.maxSeconds,
		Muted:           s.muted,
		Artifacts:       append([]entity.MediaArtifact(nil), s.artifacts...),
		UploadPercent:   s.uploadPercent,
		Result:          s.result,
		LastError:       s.lastError,
		Warning:         s.warning,
	}
	if snapshot.LoadKey == "" {
		snapshot.LoadKey = usecase.LoadKeyFor(s.loadNumber)
	}
	if s.stepIndex < len(s.cfg.Steps) {
		snapshot.Step = s.cfg.Steps[s.stepIndex]
	}
	return snapshot
}

// Close отменяет контекст сессии: тикер записи и незавершенная загрузка останавливаются.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Sequencer) checkLoad(ctx context.Context) error {
	if s.cfg.LoadID == "" || s.deps.Loads == nil {
		return nil
	}

	load, err := s.deps.Loads.GetLoadByID(ctx, s.cfg.LoadID)
	if err != nil {
		// Реестр недоступен: считаем груз незавершенным
		s.logger.Warn("Failed to check load status, continuing",
			"session_id", s.cfg.SessionID,
			"load_id", s.cfg.LoadID,
			"error", err.Error(),
		)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadNumber == "" {
		s.loadNumber = load.LoadNumber
	}
	if load.Completion.BlocksCapture() {
		s.lastError = apperror.ErrLoadAlreadyCompleted.Error()
		if err := s.transitionLocked(StateLoadCompleted, s.lastError); err != nil {
			return err
		}
		return apperror.ErrLoadAlreadyCompleted
	}
	return nil
}

func (s *Sequencer) resolveCameraPermission(ctx context.Context, force bool) error {
	status, err := s.deps.Permissions.Status(ctx, port.CapabilityCamera)
	if err == nil && status != port.PermissionGranted && (force || status == port.PermissionUndetermined) {
		status, err = s.deps.Permissions.Request(ctx, port.CapabilityCamera)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil || status != port.PermissionGranted {
		if err != nil {
			s.logger.Error("Camera permission check failed", err, "session_id", s.cfg.SessionID)
		}
		s.lastError = "camera permission is required"
		if terr := s.transitionLocked(StatePermissionDenied, s.lastError); terr != nil {
			return terr
		}
		return apperror.ErrPermissionDenied
	}

	return s.transitionLocked(StateReady, "")
}

func (s *Sequencer) microphoneGranted(ctx context.Context) bool {
	status, err := s.deps.Permissions.Status(ctx, port.CapabilityMicrophone)
	if err == nil && status != port.PermissionGranted {
		status, err = s.deps.Permissions.Request(ctx, port.CapabilityMicrophone)
	}
	if err != nil {
		s.logger.Warn("Microphone permission check failed", "session_id", s.cfg.SessionID, "error", err.Error())
		return false
	}
	return status == port.PermissionGranted
}

func (s *Sequencer) runTicker(ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C():
			s.mu.Lock()
			if s.state != StateRecording || s.stopDone != nil {
				s.mu.Unlock()
				return
			}
			s.elapsed++
			if err := checkTransition(StateRecording, StateRecording); err != nil {
				s.mu.Unlock()
				return
			}
			s.emitLocked(Event{Type: EventTick})
			reached := s.elapsed >= s.maxSeconds
			s.mu.Unlock()

			if reached {
				s.logger.Info("Recording reached max duration", "session_id", s.cfg.SessionID, "seconds", s.maxSeconds)
				if _, err := s.stopRecording(s.ctx); err != nil {
					s.logger.Error("Auto-stop failed", err, "session_id", s.cfg.SessionID)
				}
				return
			}
		}
	}
}

func (s *Sequencer) stopRecording(ctx context.Context) (entity.MediaArtifact, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.MediaArtifact{}, fmt.Errorf("%w: session closed", apperror.ErrInvalidState)
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return entity.MediaArtifact{}, ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopArtifact, s.stopErr
	}
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return entity.MediaArtifact{}, fmt.Errorf("%w: not recording (%s)", apperror.ErrInvalidState, state)
	}

	s.stopDone = make(chan struct{})
	close(s.stopTicker)
	s.stopTicker = nil
	rec := s.recording
	index := s.stepIndex
	step := s.cfg.Steps[index]
	elapsed := s.elapsed
	muted := s.muted
	loadNumber := s.loadNumber
	s.mu.Unlock()

	file, err := rec.Stop(ctx)
	var artifact entity.MediaArtifact
	if err == nil {
		artifact, err = s.newArtifact(index, step, file, loadNumber, elapsed, muted)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", apperror.ErrCaptureFailure, err)
		s.logger.Error("Recording failed", err, "session_id", s.cfg.SessionID, "step", index+1)
		s.mu.Lock()
		s.failStepLocked(err)
		s.finishStopLocked(entity.MediaArtifact{}, err)
		s.mu.Unlock()
		return entity.MediaArtifact{}, err
	}

	err = s.completeStep(artifact)

	s.mu.Lock()
	s.finishStopLocked(artifact, err)
	s.mu.Unlock()
	return artifact, err
}

func (s *Sequencer) finishStopLocked(artifact entity.MediaArtifact, err error) {
	s.stopArtifact = artifact
	s.stopErr = err
	s.recording = nil
	close(s.stopDone)
	s.stopDone = nil
}

// completeStep фиксирует артефакт шага, сохраняет его локально и переходит дальше.
// После последнего шага сразу запускает загрузку всех собранных артефактов.
func (s *Sequencer) completeStep(artifact entity.MediaArtifact) error {
	s.mu.Lock()
	if err := s.transitionLocked(StateStepComplete, ""); err != nil {
		s.mu.Unlock()
		return err
	}
	s.artifacts = append(s.artifacts, artifact)
	s.mu.Unlock()

	if s.deps.Store != nil {
		if err := s.deps.Store.Append(s.ctx, artifact); err != nil {
			s.logger.Warn("Failed to save media locally",
				"session_id", s.cfg.SessionID,
				"media_id", artifact.ID,
				"error", err.Error(),
			)
		}
	}

	s.mu.Lock()
	if s.stepIndex+1 < len(s.cfg.Steps) {
		s.stepIndex++
		s.elapsed = 0
		err := s.transitionLocked(StateReady, "")
		s.mu.Unlock()
		return err
	}
	err := s.transitionLocked(StateAllStepsComplete, "")
	artifacts := append([]entity.MediaArtifact(nil), s.artifacts...)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	_, err = s.upload(artifacts, nil)
	return err
}

func (s *Sequencer) upload(artifacts []entity.MediaArtifact, previous *entity.BatchResult) (*entity.BatchResult, error) {
	s.mu.Lock()
	if err := s.transitionLocked(StateUploading, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.uploadPercent = 0
	cmd := usecase.UploadMediaBatchCommand{
		LoadKey:    s.resolveLoadKeyLocked(),
		LoadID:     s.cfg.LoadID,
		LoadNumber: s.loadNumber,
		Artifacts:  artifacts,
	}
	s.mu.Unlock()

	result, err := s.deps.Uploader.Execute(s.ctx, cmd, progressRelay{s: s})
	merged := mergeOutcome(artifacts, previous, result, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = merged
	message := ""
	if err != nil {
		s.lastError = err.Error()
		message = err.Error()
	} else {
		s.lastError = ""
	}
	if terr := s.transitionLocked(StateDone, message); terr != nil {
		return merged, terr
	}
	return merged, err
}

// mergeOutcome приводит исход загрузки к BatchResult. Если до загрузки элементов
// дело не дошло (например, хранилище не настроено), все элементы считаются упавшими.
func mergeOutcome(
	artifacts []entity.MediaArtifact,
	previous *entity.BatchResult,
	result *entity.BatchResult,
	err error,
) *entity.BatchResult {
	var batchErr *apperror.BatchFailureError
	switch {
	case err == nil:
	case errors.As(err, &batchErr) && batchErr.Result != nil:
		result = batchErr.Result
	default:
		failures := make([]entity.UploadOutcome, 0, len(artifacts))
		for _, artifact := range artifacts {
			failures = append(failures, entity.UploadOutcome{Artifact: artifact, ErrorMessage: err.Error()})
		}
		result = entity.NewBatchResult(len(artifacts), nil, failures)
	}

	if previous == nil {
		return result
	}

	successes := make([]entity.UploadOutcome, 0, len(previous.Successes)+len(result.Successes))
	successes = append(successes, previous.Successes...)
	successes = append(successes, result.Successes...)
	return entity.NewBatchResult(previous.TotalCount, successes, result.Failures)
}

func (s *Sequencer) resolveLoadKeyLocked() string {
	if s.loadKey != "" {
		return s.loadKey
	}
	key := usecase.LoadKeyFor(s.loadNumber)
	if key == "" {
		key = "LOAD_" + strconv.FormatInt(s.deps.Now().UnixMilli(), 10)
	}
	s.loadKey = key
	return key
}

func (s *Sequencer) newArtifact(
	index int,
	step entity.CaptureStep,
	file port.CapturedFile,
	loadNumber string,
	duration int,
	muted bool,
) (entity.MediaArtifact, error) {
	capturedAt := file.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.deps.Now()
	}
	return entity.NewMediaArtifact(entity.ArtifactInput{
		Kind:            step.Kind,
		LocalURI:        file.LocalURI,
		CapturedAt:      capturedAt,
		StepIndex:       index,
		DurationSeconds: duration,
		Muted:           muted,
		LoadID:          s.cfg.LoadID,
		LoadNumber:      loadNumber,
		SizeBytes:       file.SizeBytes,
	})
}

// beginLocked занимает сессию под одно действие в ожидаемом состоянии.
func (s *Sequencer) beginLocked(expected State) error {
	if s.closed {
		return fmt.Errorf("%w: session closed", apperror.ErrInvalidState)
	}
	if s.busy {
		return fmt.Errorf("%w: another action is in progress", apperror.ErrInvalidState)
	}
	if s.state != expected {
		return fmt.Errorf("%w: expected %s, got %s", apperror.ErrInvalidState, expected, s.state)
	}
	s.busy = true
	return nil
}

func (s *Sequencer) endAction() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Sequencer) currentStepLocked(kind valueobject.MediaKind) (int, entity.CaptureStep, error) {
	step := s.cfg.Steps[s.stepIndex]
	if step.Kind != kind {
		return s.stepIndex, step, fmt.Errorf("%w: step %d expects %s", apperror.ErrInvalidState, s.stepIndex+1, step.Kind)
	}
	return s.stepIndex, step, nil
}

// failStepLocked возвращает шаг в ready без продвижения.
func (s *Sequencer) failStepLocked(err error) {
	s.lastError = err.Error()
	if terr := s.transitionLocked(StateReady, err.Error()); terr != nil {
		s.logger.Error("Failed to reset step", terr, "session_id", s.cfg.SessionID)
	}
	s.elapsed = 0
	s.emitLocked(Event{Type: EventError, Message: err.Error()})
}

func (s *Sequencer) transitionLocked(to State, message string) error {
	if err := checkTransition(s.state, to); err != nil {
		return err
	}
	s.logger.Debug("Capture state changed",
		"session_id", s.cfg.SessionID,
		"from", string(s.state),
		"to", string(to),
		"step", s.stepIndex+1,
	)
	s.state = to
	s.emitLocked(Event{Type: EventState, Message: message})
	return nil
}

func (s *Sequencer) emitLocked(event Event) {
	event.SessionID = s.cfg.SessionID
	event.State = s.state
	event.StepIndex = s.stepIndex
	event.Elapsed = s.elapsed
	event.Timestamp = s.deps.Now().UTC()
	s.deps.Sink.Publish(event)
}

type progressRelay struct {
	s *Sequencer
}

func (r progressRelay) OnItemProgress(p port.ItemProgress) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.emitLocked(Event{Type: EventItemProgress, Item: &p})
}

func (r progressRelay) OnBatchProgress(p port.BatchProgress) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.uploadPercent = p.Percent
	r.s.emitLocked(Event{Type: EventProgress, Batch: &p})
}
