package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jwebster45206/dialogue-engine/internal/config"
	"github.com/jwebster45206/dialogue-engine/internal/services/events"
	internalstorage "github.com/jwebster45206/dialogue-engine/internal/storage"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

// openBackend builds the storage backend named by cfg.StorageBackend. The
// returned close function is never nil.
func openBackend(cfg *config.Config, log *slog.Logger) (storage.Backend, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Warn("Using in-memory storage, saves are lost on restart")
		return storage.NewMemoryBackend(), noClose, nil

	case config.BackendRedis:
		backend, err := internalstorage.NewRedisBackend(cfg.RedisURL, 0, log)
		if err != nil {
			return nil, noClose, err
		}
		return backend, backend.Close, nil

	case config.BackendSQLite:
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, noClose, err
		}
		backend, err := internalstorage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noClose, err
		}
		return backend, backend.Close, nil

	case config.BackendFile:
		if err := ensureDir(cfg.DataFile); err != nil {
			return nil, noClose, err
		}
		backend, err := internalstorage.NewFileBackend(cfg.DataFile, cfg.DataFileSaveInterval, log)
		if err != nil {
			return nil, noClose, err
		}
		return backend, backend.Close, nil
	}
	return nil, noClose, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// waitForBackend retries Redis while it starts up alongside the API. Other
// pingable backends get a single check.
func waitForBackend(ctx context.Context, backend storage.Backend) error {
	switch b := backend.(type) {
	case *internalstorage.RedisBackend:
		return b.WaitForConnection(ctx, 10, 2*time.Second)
	case storage.Pinger:
		return b.Ping(ctx)
	}
	return nil
}

// newBroadcaster shares the Redis connection when sessions are stored in
// Redis so streams work across replicas. Other backends broadcast in-process.
func newBroadcaster(backend storage.Backend, log *slog.Logger) events.Broadcaster {
	if rb, ok := backend.(*internalstorage.RedisBackend); ok {
		return events.NewRedisBroadcaster(rb.Client(), log)
	}
	return events.NewLocalBroadcaster(log)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
