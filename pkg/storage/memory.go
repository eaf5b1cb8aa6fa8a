package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend used by tests and the memory
// storage mode. It can be told to fail operations or to refuse values over a
// size limit.
type MemoryBackend struct {
	mu       sync.RWMutex
	items    map[string]string
	maxBytes int
	getErr   error
	setErr   error
	pingErr  error
	writes   int
}

// Ensure MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

func (m *MemoryBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryBackend) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.maxBytes > 0 && len(value) > m.maxBytes {
		return ErrQuotaExceeded
	}
	m.items[key] = value
	m.writes++
	return nil
}

func (m *MemoryBackend) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	delete(m.items, key)
	return nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

// SetGetError makes every subsequent read fail with err. Pass nil to clear.
func (m *MemoryBackend) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetSetError makes every subsequent write or remove fail with err.
func (m *MemoryBackend) SetSetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// SetPingError configures the result of Ping.
func (m *MemoryBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetMaxBytes rejects values longer than n bytes with ErrQuotaExceeded.
// Zero disables the limit.
func (m *MemoryBackend) SetMaxBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxBytes = n
}

// Keys returns the stored keys in sorted order.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes returns the number of successful SetItem calls.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
