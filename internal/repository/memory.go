package repository

import (
	"context"
	"sync"
	"time"

	"foodtruck/internal/models"
)

type MemoryMenuCache struct {
	mu        sync.RWMutex
	items     []models.MenuItem
	expiresAt time.Time
	ttl       time.Duration
}

func NewMemoryMenuCache(ttl time.Duration) *MemoryMenuCache {
	return &MemoryMenuCache{
		ttl: ttl,
	}
}

func (r *MemoryMenuCache) GetMenu(ctx context.Context) ([]models.MenuItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.items == nil || time.Now().After(r.expiresAt) {
		return nil, nil
	}
	out := make([]models.MenuItem, len(r.items))
	copy(out, r.items)
	return out, nil
}

func (r *MemoryMenuCache) SetMenu(ctx context.Context, items []models.MenuItem) error {
	snapshot := make([]models.MenuItem, len(items))
	copy(snapshot, items)

	r.mu.Lock()
	r.items = snapshot
	r.expiresAt = time.Now().Add(r.ttl)
	r.mu.Unlock()
	return nil
}

func (r *MemoryMenuCache) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
	return nil
}
