package repository

import (
	"context"
	"sync/atomic"
	"time"

	"foodtruck/internal/models"

	"github.com/rs/zerolog"
)

type FailoverMenuCache struct {
	primary  MenuCache
	fallback MenuCache
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// unix nanos последней неудачной попытки; пишется из конкурентных запросов
	lastCheck atomic.Int64
}

func NewFailoverMenuCache(primary, fallback MenuCache, logger *zerolog.Logger) *FailoverMenuCache {
	return &FailoverMenuCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverMenuCache) GetMenu(ctx context.Context) ([]models.MenuItem, error) {
	if !r.isDown.Load() {
		items, err := r.primary.GetMenu(ctx)
		if err == nil {
			return items, nil
		}
		r.logger.Error().Err(err).Msg("Primary menu cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck.Store(time.Now().UnixNano())
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute {
		items, err := r.primary.GetMenu(ctx)
		if err == nil {
			r.isDown.Store(false)
			return items, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetMenu(ctx)
}

func (r *FailoverMenuCache) SetMenu(ctx context.Context, items []models.MenuItem) error {
	if !r.isDown.Load() {
		err := r.primary.SetMenu(ctx, items)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary menu cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.SetMenu(ctx, items)
}

func (r *FailoverMenuCache) Invalidate(ctx context.Context) error {
	if !r.isDown.Load() {
		err := r.primary.Invalidate(ctx)
		if err == nil {
			// сбрасываем оба уровня, чтобы устаревший снимок не вернулся из памяти
			return r.fallback.Invalidate(ctx)
		}
		r.logger.Error().Err(err).Msg("Primary menu cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Invalidate(ctx)
}
