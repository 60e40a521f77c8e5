package backend

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/pkg/logger"
)

const loadsCacheKey = "securecam:loads:all"

// CachedLoadRegistry - read-through кэш списка грузов.
// Ошибки кэша не мешают чтению из backend.
type CachedLoadRegistry struct {
	next   port.LoadRegistry
	cache  port.Cache
	ttl    time.Duration
	logger *logger.Logger
}

var _ port.LoadRegistry = (*CachedLoadRegistry)(nil)

func NewCachedLoadRegistry(next port.LoadRegistry, cache port.Cache, ttl time.Duration, log *logger.Logger) *CachedLoadRegistry {
	return &CachedLoadRegistry{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log,
	}
}

func (r *CachedLoadRegistry) FetchLoads(ctx context.Context) ([]entity.LoadSnapshot, error) {
	var cached []entity.LoadSnapshot
	err := r.cache.Get(ctx, loadsCacheKey, &cached)
	if err == nil {
		r.logger.Debug("Loads served from cache", "count", len(cached))
		return cached, nil
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		r.logger.Warn("Loads cache read failed", "error", err.Error())
	}

	loads, err := r.next.FetchLoads(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, loadsCacheKey, loads, r.ttl); err != nil {
		r.logger.Warn("Loads cache write failed", "error", err.Error())
	}
	return loads, nil
}

// GetLoadByID не кэшируется отдельно: статус завершения проверяется перед съемкой
// и должен быть свежим.
func (r *CachedLoadRegistry) GetLoadByID(ctx context.Context, id string) (*entity.LoadSnapshot, error) {
	return r.next.GetLoadByID(ctx, id)
}
