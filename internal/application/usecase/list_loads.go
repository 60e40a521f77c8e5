package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/pkg/logger"
)

type ListLoadsCommand struct {
	// UserID фильтрует грузы пользователя; пустой - все грузы.
	UserID string
}

// ListLoadsUseCase возвращает грузы с уже декодированным статусом завершения
type ListLoadsUseCase struct {
	registry port.LoadRegistry
	logger   *logger.Logger
}

func NewListLoadsUseCase(registry port.LoadRegistry, log *logger.Logger) *ListLoadsUseCase {
	return &ListLoadsUseCase{registry: registry, logger: log}
}

func (uc *ListLoadsUseCase) Execute(ctx context.Context, cmd ListLoadsCommand) ([]entity.LoadSnapshot, error) {
	loads, err := uc.registry.FetchLoads(ctx)
	if err != nil {
		uc.logger.Error("Failed to fetch loads", err)
		return nil, fmt.Errorf("failed to fetch loads: %w", err)
	}

	userID := strings.TrimSpace(cmd.UserID)
	filtered := make([]entity.LoadSnapshot, 0, len(loads))
	for _, load := range loads {
		if userID != "" && load.UserID != userID {
			continue
		}
		filtered = append(filtered, load)
	}

	// Новые грузы первыми
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered, nil
}
