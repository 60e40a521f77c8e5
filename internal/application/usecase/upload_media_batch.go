package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/pkg/logger"
)

const defaultStreamThreshold int64 = 5 * 1024 * 1024

type UploadMediaBatchCommand struct {
	LoadKey    string
	LoadID     string
	LoadNumber string
	Artifacts  []entity.MediaArtifact
}

type UploadMediaBatchConfig struct {
	KeyPrefix string
	// StreamThreshold: файлы от этого размера загружаются потоком, без чтения в память.
	StreamThreshold int64
	// ItemTimeout ограничивает одну попытку загрузки; 0 - без ограничения.
	ItemTimeout time.Duration
}

// UploadMediaBatchDeps собирает зависимости пайплайна. Storage и Source обязательны,
// остальные шаги после загрузки выполняются только если заданы.
type UploadMediaBatchDeps struct {
	Storage  port.ObjectStorage
	Source   port.MediaSource
	Catalog  port.MediaCatalog
	Store    port.MediaStore
	Events   port.EventPublisher
	Metrics  port.MetricsPublisher
	Recorder port.UploadRecorder
	Now      func() time.Time
}

// UploadMediaBatchUseCase последовательно загружает артефакты одного груза.
// Ошибка одного элемента не прерывает загрузку остальных.
type UploadMediaBatchUseCase struct {
	deps   UploadMediaBatchDeps
	config UploadMediaBatchConfig
	logger *logger.Logger
}

func NewUploadMediaBatchUseCase(
	deps UploadMediaBatchDeps,
	config UploadMediaBatchConfig,
	log *logger.Logger,
) *UploadMediaBatchUseCase {
	if config.StreamThreshold <= 0 {
		config.StreamThreshold = defaultStreamThreshold
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &UploadMediaBatchUseCase{
		deps:   deps,
		config: config,
		logger: log,
	}
}

// Execute загружает все артефакты команды.
//
// Пустой батч возвращает пустой результат без ошибки (OverallSuccess=false).
// Если не загружен ни один элемент, возвращается *apperror.BatchFailureError.
// Частичный успех считается успехом: Failures содержит упавшие элементы.
func (uc *UploadMediaBatchUseCase) Execute(
	ctx context.Context,
	cmd UploadMediaBatchCommand,
	observer port.ProgressObserver,
) (*entity.BatchResult, error) {
	if uc.deps.Storage == nil || uc.deps.Source == nil {
		return nil, apperror.ErrStorageNotConfigured
	}
	if observer == nil {
		observer = port.NopProgressObserver{}
	}

	loadKey, err := validateLoadKey(cmd.LoadKey)
	if err != nil {
		return nil, err
	}

	total := len(cmd.Artifacts)
	if total == 0 {
		uc.recordBatch("empty")
		return entity.NewBatchResult(0, nil, nil), nil
	}

	if err := uc.deps.Storage.HeadBucket(ctx); err != nil {
		uc.logger.Error("Object storage pre-flight failed", err, "load_key", loadKey)
		return nil, fmt.Errorf("%w: %v", apperror.ErrStorageNotConfigured, err)
	}

	startedAt := time.Now()
	successes := make([]entity.UploadOutcome, 0, total)
	failures := make([]entity.UploadOutcome, 0)

	for index, artifact := range cmd.Artifacts {
		outcome := uc.uploadOne(ctx, index, loadKey, artifact, observer)
		if outcome.Success {
			successes = append(successes, outcome)
		} else {
			failures = append(failures, outcome)
		}

		completed := index + 1
		observer.OnBatchProgress(port.BatchProgress{
			Percent:   int(math.Round(100 * float64(completed) / float64(total))),
			Completed: completed,
			Total:     total,
		})
	}

	result := entity.NewBatchResult(total, successes, failures)
	uc.publishMetrics(ctx, loadKey, result, time.Since(startedAt))

	if !result.OverallSuccess {
		uc.recordBatch("failure")
		batchErr := &apperror.BatchFailureError{Result: result}
		uc.logger.Error("All uploads failed", batchErr, "load_key", loadKey, "total", total)
		return nil, batchErr
	}

	if result.Partial() {
		uc.recordBatch("partial")
		uc.logger.Warn("Batch uploaded partially",
			"load_key", loadKey,
			"succeeded", len(result.Successes),
			"failed", len(result.Failures),
		)
	} else {
		uc.recordBatch("success")
		uc.logger.Info("Batch uploaded", "load_key", loadKey, "count", total)
	}

	uc.catalog(ctx, cmd, result)
	uc.markUploaded(ctx, result)
	uc.publishEvent(ctx, cmd, loadKey, result)

	return result, nil
}

func (uc *UploadMediaBatchUseCase) uploadOne(
	ctx context.Context,
	index int,
	loadKey string,
	artifact entity.MediaArtifact,
	observer port.ProgressObserver,
) entity.UploadOutcome {
	if uc.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.ItemTimeout)
		defer cancel()
	}

	capturedAt := artifact.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = uc.deps.Now()
	}
	key := BuildMediaKey(uc.config.KeyPrefix, loadKey, capturedAt, artifact.StepIndex, artifact.Kind)
	startedAt := time.Now()

	res, size, err := uc.put(ctx, index, key, artifact, observer)
	if artifact.SizeBytes == 0 {
		artifact.SizeBytes = size
	}
	uc.recordItem(artifact, err == nil, time.Since(startedAt))

	if err != nil {
		uc.logger.Error("Failed to upload media", err,
			"key", key,
			"step", artifact.StepIndex+1,
			"kind", artifact.Kind.String(),
		)
		return entity.UploadOutcome{
			Artifact:     artifact,
			Success:      false,
			RemoteKey:    key,
			ErrorMessage: err.Error(),
		}
	}

	return entity.UploadOutcome{
		Artifact:       artifact,
		Success:        true,
		RemoteKey:      res.Key,
		RemoteLocation: res.Location,
		Checksum:       res.ETag,
	}
}

func (uc *UploadMediaBatchUseCase) put(
	ctx context.Context,
	index int,
	key string,
	artifact entity.MediaArtifact,
	observer port.ProgressObserver,
) (port.PutObjectResult, int64, error) {
	body, size, err := uc.deps.Source.Open(ctx, artifact.LocalURI)
	if err != nil {
		return port.PutObjectResult{}, 0, fmt.Errorf("open %s: %w", artifact.LocalURI, err)
	}
	defer body.Close()

	progress := func(percent int) {
		observer.OnItemProgress(port.ItemProgress{Index: index, Key: key, Percent: percent})
	}
	contentType := artifact.Kind.ContentType()

	if size < 0 || size >= uc.config.StreamThreshold {
		res, err := uc.deps.Storage.PutObjectStream(ctx, key, contentType, body, size, progress)
		return res, size, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return port.PutObjectResult{}, size, fmt.Errorf("read %s: %w", artifact.LocalURI, err)
	}
	if len(data) == 0 {
		return port.PutObjectResult{}, 0, errors.New("file is empty")
	}

	res, err := uc.deps.Storage.PutObject(ctx, key, contentType, data, progress)
	return res, int64(len(data)), err
}

// catalog записывает ссылки на загруженные файлы. Ошибка только логируется.
func (uc *UploadMediaBatchUseCase) catalog(ctx context.Context, cmd UploadMediaBatchCommand, result *entity.BatchResult) {
	if uc.deps.Catalog == nil {
		return
	}

	uploadedAt := uc.deps.Now().UTC()
	records := make([]port.CatalogRecord, 0, len(result.Successes))
	for _, outcome := range result.Successes {
		artifact := outcome.Artifact
		records = append(records, port.CatalogRecord{
			LoadID:      firstNonEmpty(artifact.LoadID, cmd.LoadID),
			LoadNumber:  firstNonEmpty(artifact.LoadNumber, cmd.LoadNumber),
			StepIndex:   artifact.StepIndex,
			Kind:        artifact.Kind.String(),
			RemoteKey:   outcome.RemoteKey,
			ContentType: artifact.Kind.ContentType(),
			SizeBytes:   artifact.SizeBytes,
			CapturedAt:  artifact.CapturedAt,
			UploadedAt:  uploadedAt,
		})
	}

	if err := uc.deps.Catalog.PutBatch(ctx, records); err != nil {
		uc.logger.Error("Failed to record uploaded media in catalog", err,
			"load_id", cmd.LoadID,
			"count", len(records),
		)
	}
}

func (uc *UploadMediaBatchUseCase) markUploaded(ctx context.Context, result *entity.BatchResult) {
	if uc.deps.Store == nil {
		return
	}
	for _, outcome := range result.Successes {
		err := uc.deps.Store.MarkUploaded(ctx, outcome.Artifact.ID, port.RemoteInfo{
			RemoteKey: outcome.RemoteKey,
			Location:  outcome.RemoteLocation,
			ETag:      outcome.Checksum,
		})
		if err != nil {
			uc.logger.Warn("Failed to mark media as uploaded", "id", outcome.Artifact.ID, "error", err.Error())
		}
	}
}

func (uc *UploadMediaBatchUseCase) publishEvent(
	ctx context.Context,
	cmd UploadMediaBatchCommand,
	loadKey string,
	result *entity.BatchResult,
) {
	if uc.deps.Events == nil {
		return
	}

	keys := make([]string, 0, len(result.Successes))
	for _, outcome := range result.Successes {
		keys = append(keys, outcome.RemoteKey)
	}

	event := port.MediaUploadedEvent{
		LoadID:     cmd.LoadID,
		LoadNumber: firstNonEmpty(cmd.LoadNumber, loadKey),
		Keys:       keys,
		Succeeded:  len(result.Successes),
		Failed:     len(result.Failures),
		Total:      result.TotalCount,
		UploadedAt: uc.deps.Now().UTC(),
	}
	if err := uc.deps.Events.PublishEvent(ctx, port.SubjectMediaUploaded, event); err != nil {
		uc.logger.Warn("Failed to publish media uploaded event", "load_key", loadKey, "error", err.Error())
	}
}

func (uc *UploadMediaBatchUseCase) publishMetrics(
	ctx context.Context,
	loadKey string,
	result *entity.BatchResult,
	elapsed time.Duration,
) {
	if uc.deps.Metrics == nil {
		return
	}

	now := uc.deps.Now().UTC()
	dimensions := map[string]string{"Prefix": firstNonEmpty(uc.config.KeyPrefix, defaultKeyPrefix)}
	data := []port.MetricDatum{
		{Name: "UploadsSucceeded", Value: float64(len(result.Successes)), Unit: port.UnitCount, Dimensions: dimensions, Timestamp: now},
		{Name: "UploadsFailed", Value: float64(len(result.Failures)), Unit: port.UnitCount, Dimensions: dimensions, Timestamp: now},
		{Name: "BatchDuration", Value: float64(elapsed.Milliseconds()), Unit: port.UnitMilliseconds, Dimensions: dimensions, Timestamp: now},
	}
	if err := uc.deps.Metrics.PublishBatch(ctx, data); err != nil {
		uc.logger.Warn("Failed to publish upload metrics", "load_key", loadKey, "error", err.Error())
	}
}

func (uc *UploadMediaBatchUseCase) recordItem(artifact entity.MediaArtifact, success bool, elapsed time.Duration) {
	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveItem(artifact.Kind.String(), success, artifact.SizeBytes, elapsed)
	}
}

func (uc *UploadMediaBatchUseCase) recordBatch(outcome string) {
	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveBatch(outcome)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
