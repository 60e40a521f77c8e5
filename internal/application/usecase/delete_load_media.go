package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/pkg/logger"
)

type DeleteLoadMediaCommand struct {
	LoadKey string
	// Key удаляет один объект; пустой - все объекты груза.
	Key string
}

type DeleteLoadMediaConfig struct {
	KeyPrefix string
}

type DeleteLoadMediaUseCase struct {
	storage port.ObjectStorage
	config  DeleteLoadMediaConfig
	logger  *logger.Logger
}

func NewDeleteLoadMediaUseCase(
	storage port.ObjectStorage,
	config DeleteLoadMediaConfig,
	log *logger.Logger,
) *DeleteLoadMediaUseCase {
	return &DeleteLoadMediaUseCase{
		storage: storage,
		config:  config,
		logger:  log,
	}
}

// Execute возвращает количество удаленных объектов.
func (uc *DeleteLoadMediaUseCase) Execute(ctx context.Context, cmd DeleteLoadMediaCommand) (int, error) {
	if uc.storage == nil {
		return 0, apperror.ErrStorageNotConfigured
	}

	loadKey, err := validateLoadKey(cmd.LoadKey)
	if err != nil {
		return 0, err
	}
	prefix := mediaKeyPrefix(uc.config.KeyPrefix, loadKey)

	if key := strings.TrimSpace(cmd.Key); key != "" {
		if !strings.HasPrefix(key, prefix) {
			return 0, &ValidationError{Problems: []string{"key does not belong to load " + loadKey}}
		}
		if err := uc.storage.DeleteObject(ctx, key); err != nil {
			return 0, fmt.Errorf("failed to delete media: %w", err)
		}
		uc.logger.Info("Media deleted", "key", key)
		return 1, nil
	}

	objects, err := uc.storage.ListObjects(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list media: %w", err)
	}
	if len(objects) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		keys = append(keys, object.Key)
	}
	if err := uc.storage.DeleteObjects(ctx, keys); err != nil {
		return 0, fmt.Errorf("failed to delete media: %w", err)
	}

	uc.logger.Info("Load media deleted", "load_key", loadKey, "count", len(keys))
	return len(keys), nil
}
