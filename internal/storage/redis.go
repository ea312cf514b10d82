package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"Inkbound/server/internal/config"
	"Inkbound/server/internal/interfaces"
	"Inkbound/server/internal/narrative"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Helper methods for common operations
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Session progress cache
const (
	progressKeyPrefix = "session:progress:"
	progressTTL       = 24 * time.Hour
)

func progressKey(sessionID string) string {
	return progressKeyPrefix + sessionID
}

// CacheProgress stores the serialized snapshot under a TTL so a crashed
// client can resume quickly without a MySQL round trip.
func (s *RedisStore) CacheProgress(ctx context.Context, sessionID string, p *narrative.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.Set(ctx, progressKey(sessionID), data, progressTTL); err != nil {
		return fmt.Errorf("failed to cache progress: %w", err)
	}
	return nil
}

// GetCachedProgress returns the cached snapshot, or
// interfaces.ErrSessionNotFound on a miss.
func (s *RedisStore) GetCachedProgress(ctx context.Context, sessionID string) (*narrative.Progress, error) {
	data, err := s.Get(ctx, progressKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached progress: %w", err)
	}

	var p narrative.Progress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached progress: %w", err)
	}
	if p.FiredTriggers == nil {
		p.FiredTriggers = make(map[string]bool)
	}
	if p.Books == nil {
		p.Books = make(map[string]narrative.BookState)
	}
	return p.Sanitized(), nil
}

// InvalidateProgress drops the cached snapshot for a session.
func (s *RedisStore) InvalidateProgress(ctx context.Context, sessionID string) error {
	return s.Del(ctx, progressKey(sessionID))
}
