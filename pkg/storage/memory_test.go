package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/storage"
	"github.com/jwebster45206/dialogue-engine/pkg/storage/storagetest"
)

func TestMemoryBackend_Contract(t *testing.T) {
	storagetest.RunBackendContract(t, func(t *testing.T) storage.Backend {
		return storage.NewMemoryBackend()
	})
}

func TestMemoryBackend_FaultInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	tests := []struct {
		name    string
		arrange func(m *storage.MemoryBackend)
		act     func(m *storage.MemoryBackend) error
		wantErr error
	}{
		{
			name:    "get error",
			arrange: func(m *storage.MemoryBackend) { m.SetGetError(boom) },
			act: func(m *storage.MemoryBackend) error {
				_, _, err := m.GetItem(ctx, "k")
				return err
			},
			wantErr: boom,
		},
		{
			name:    "set error",
			arrange: func(m *storage.MemoryBackend) { m.SetSetError(boom) },
			act:     func(m *storage.MemoryBackend) error { return m.SetItem(ctx, "k", "v") },
			wantErr: boom,
		},
		{
			name:    "remove error",
			arrange: func(m *storage.MemoryBackend) { m.SetSetError(boom) },
			act:     func(m *storage.MemoryBackend) error { return m.RemoveItem(ctx, "k") },
			wantErr: boom,
		},
		{
			name:    "quota",
			arrange: func(m *storage.MemoryBackend) { m.SetMaxBytes(8) },
			act:     func(m *storage.MemoryBackend) error { return m.SetItem(ctx, "k", strings.Repeat("x", 9)) },
			wantErr: storage.ErrQuotaExceeded,
		},
		{
			name:    "ping error",
			arrange: func(m *storage.MemoryBackend) { m.SetPingError(boom) },
			act:     func(m *storage.MemoryBackend) error { return m.Ping(ctx) },
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := storage.NewMemoryBackend()
			tt.arrange(m)
			assert.ErrorIs(t, tt.act(m), tt.wantErr)
			assert.Empty(t, m.Keys())
		})
	}
}

func TestMemoryBackend_Writes(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryBackend()
	require.NoError(t, m.SetItem(ctx, "b", "1"))
	require.NoError(t, m.SetItem(ctx, "a", "2"))
	require.NoError(t, m.SetItem(ctx, "a", "3"))
	assert.Equal(t, 3, m.Writes())
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}
