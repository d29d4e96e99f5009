package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"foodtruck/internal/config"
	"foodtruck/internal/models"

	"github.com/redis/go-redis/v9"
)

// menuSnapshotKey хранит сериализованный снимок каталога целиком.
const menuSnapshotKey = "menu:snapshot"

// MenuCache раздает снимок меню для читающих запросов.
// Nil-срез без ошибки означает промах кэша.
type MenuCache interface {
	GetMenu(ctx context.Context) ([]models.MenuItem, error)
	SetMenu(ctx context.Context, items []models.MenuItem) error
	Invalidate(ctx context.Context) error
}

type RedisMenuCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisMenuCache(client *redis.Client, ttl time.Duration) *RedisMenuCache {
	return &RedisMenuCache{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisMenuCache) GetMenu(ctx context.Context) ([]models.MenuItem, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, menuSnapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu from redis: %w", err)
	}

	var items []models.MenuItem
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal menu snapshot: %w", err)
	}

	return items, nil
}

func (r *RedisMenuCache) SetMenu(ctx context.Context, items []models.MenuItem) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal menu snapshot: %w", err)
	}

	if err := r.client.Set(ctx, menuSnapshotKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set menu in redis: %w", err)
	}

	return nil
}

func (r *RedisMenuCache) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, menuSnapshotKey).Err(); err != nil {
		return fmt.Errorf("failed to delete menu snapshot from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
