package storage

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by a backend that refuses a value because of
// its size.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is a string key-value store. Values are JSON text.
//
// GetItem reports found=false with a nil error for a missing key.
type Backend interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
