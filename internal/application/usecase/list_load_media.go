package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/pkg/logger"
)

const defaultSignedURLTTL = time.Hour

type ListLoadMediaCommand struct {
	LoadKey string
	// URLTTL время жизни подписанной ссылки; 0 - значение по умолчанию (1 час).
	URLTTL time.Duration
}

type LoadMediaItem struct {
	Key          string
	Step         int
	Kind         string
	URL          string
	SizeBytes    int64
	LastModified time.Time
}

type ListLoadMediaResult struct {
	LoadKey string
	Items   []LoadMediaItem
}

type ListLoadMediaConfig struct {
	KeyPrefix    string
	SignedURLTTL time.Duration
}

// ListLoadMediaUseCase возвращает загруженные медиа груза с подписанными ссылками
type ListLoadMediaUseCase struct {
	storage port.ObjectStorage
	config  ListLoadMediaConfig
	logger  *logger.Logger
}

func NewListLoadMediaUseCase(
	storage port.ObjectStorage,
	config ListLoadMediaConfig,
	log *logger.Logger,
) *ListLoadMediaUseCase {
	if config.SignedURLTTL <= 0 {
		config.SignedURLTTL = defaultSignedURLTTL
	}
	return &ListLoadMediaUseCase{
		storage: storage,
		config:  config,
		logger:  log,
	}
}

func (uc *ListLoadMediaUseCase) Execute(
	ctx context.Context,
	cmd ListLoadMediaCommand,
) (*ListLoadMediaResult, error) {
	if uc.storage == nil {
		return nil, apperror.ErrStorageNotConfigured
	}

	loadKey, err := validateLoadKey(cmd.LoadKey)
	if err != nil {
		return nil, err
	}

	ttl := cmd.URLTTL
	if ttl <= 0 {
		ttl = uc.config.SignedURLTTL
	}

	objects, err := uc.storage.ListObjects(ctx, mediaKeyPrefix(uc.config.KeyPrefix, loadKey))
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	items := make([]LoadMediaItem, 0, len(objects))
	for _, object := range objects {
		parsed := ParseMediaKey(object.Key)
		kind := "unknown"
		if parsed.KnownKind {
			kind = parsed.Kind.String()
		}

		url, err := uc.storage.SignedURL(ctx, object.Key, ttl)
		if err != nil {
			// Без ссылки элемент бесполезен для клиента, но список не прерываем
			uc.logger.Warn("Failed to sign media url", "key", object.Key, "error", err.Error())
		}

		items = append(items, LoadMediaItem{
			Key:          object.Key,
			Step:         parsed.Step,
			Kind:         kind,
			URL:          url,
			SizeBytes:    object.SizeBytes,
			LastModified: object.LastModified.UTC(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Step != items[j].Step {
			return items[i].Step < items[j].Step
		}
		return items[i].LastModified.After(items[j].LastModified)
	})

	return &ListLoadMediaResult{
		LoadKey: loadKey,
		Items:   items,
	}, nil
}
