package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

// RedisBackend implements storage.Backend on Redis string keys.
type RedisBackend struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Ensure RedisBackend implements Backend
var _ storage.Backend = (*RedisBackend)(nil)
var _ storage.Pinger = (*RedisBackend)(nil)

// NewRedisBackend creates a Redis backend. redisURL may be a redis:// URL or a
// bare host:port. A zero ttl stores keys without expiry.
func NewRedisBackend(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisBackend, error) {
	var opt *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}

	return &RedisBackend{
		client: redis.NewClient(opt),
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Client returns the underlying client for callers sharing the connection,
// such as the session event broadcaster.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisBackend) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		r.logger.Error("Redis GET failed", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisBackend) SetItem(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		if strings.HasPrefix(err.Error(), "OOM") {
			return fmt.Errorf("failed to set %s: %w", key, storage.ErrQuotaExceeded)
		}
		r.logger.Error("Redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	r.logger.Debug("Redis SET successful", "key", key, "bytes", len(value))
	return nil
}

func (r *RedisBackend) RemoveItem(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
