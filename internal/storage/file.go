package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/keshon/datastore"

	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

const DefaultFileSaveInterval = 10 * time.Second

// FileBackend implements storage.Backend on a single JSON file. Writes land
// in memory at once and reach disk on the next autosave tick; Close performs
// a final save.
type FileBackend struct {
	ds     *datastore.DataStore
	stop   context.CancelFunc
	logger *slog.Logger
}

// Ensure FileBackend implements Backend
var _ storage.Backend = (*FileBackend)(nil)

// NewFileBackend opens filePath, creating it when missing. A non-positive
// saveInterval selects DefaultFileSaveInterval.
func NewFileBackend(filePath string, saveInterval time.Duration, logger *slog.Logger) (*FileBackend, error) {
	if saveInterval <= 0 {
		saveInterval = DefaultFileSaveInterval
	}
	// The autosave loop lives as long as the backend; Close cancels it.
	ctx, stop := context.WithCancel(context.Background())
	ds, err := datastore.New(ctx, filePath,
		datastore.WithSaveInterval(saveInterval),
		datastore.WithLogger(logger.With("component", "datastore")),
	)
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	return &FileBackend{ds: ds, stop: stop, logger: logger}, nil
}

// Close stops autosave and writes the file one last time.
func (f *FileBackend) Close() error {
	f.stop()
	if err := f.ds.Close(); err != nil {
		return fmt.Errorf("failed to save data file: %w", err)
	}
	return nil
}

func (f *FileBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var raw json.RawMessage
	found, err := f.ds.Get(key, &raw)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return "", false, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	// Hand-edited files may hold a JSON value instead of a string.
	return string(raw), true, nil
}

func (f *FileBackend) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.ds.Set(key, value); err != nil {
		f.logger.Error("Failed to store item", "key", key, "error", err)
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (f *FileBackend) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.ds.Delete(key); err != nil {
		f.logger.Error("Failed to remove item", "key", key, "error", err)
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
