package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const viewKeyPrefix = "job_view:"

// RedisViewCache keeps merged job views hot in redis with a TTL.
type RedisViewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	return redis.NewClient(options)
}

func NewRedisViewCache(client *redis.Client, ttl time.Duration) *RedisViewCache {
	return &RedisViewCache{client: client, ttl: ttl}
}

func (r *RedisViewCache) GetView(ctx context.Context, jobID int64) (*models.JobView, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("%s%d", viewKeyPrefix, jobID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get view from redis: %w", err)
	}

	var view models.JobView
	if err := json.Unmarshal([]byte(val), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal view: %w", err)
	}
	return &view, nil
}

func (r *RedisViewCache) SetView(ctx context.Context, view *models.JobView) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("%s%d", viewKeyPrefix, view.ID)
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set view in redis: %w", err)
	}
	return nil
}

func (r *RedisViewCache) Invalidate(ctx context.Context, jobID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("%s%d", viewKeyPrefix, jobID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete view from redis: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached view. Used after the administrative
// bulk-clear.
func (r *RedisViewCache) InvalidateAll(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	iter := r.client.Scan(ctx, 0, viewKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete view key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan view keys: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
