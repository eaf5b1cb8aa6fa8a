// Package storagetest holds the behavior every storage.Backend must share.
package storagetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

// RunBackendContract exercises a fresh backend returned by newBackend.
func RunBackendContract(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		b := newBackend(t)
		v, found, err := b.GetItem(ctx, "dlg:v1:missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SetItem(ctx, "dlg:v1:default:game_state", `{"version":2}`))
		v, found, err := b.GetItem(ctx, "dlg:v1:default:game_state")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"version":2}`, v)
	})

	t.Run("overwrite", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SetItem(ctx, "k", "first"))
		require.NoError(t, b.SetItem(ctx, "k", "second"))
		v, _, err := b.GetItem(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("remove", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SetItem(ctx, "k", "v"))
		require.NoError(t, b.RemoveItem(ctx, "k"))
		_, found, err := b.GetItem(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("remove missing key", func(t *testing.T) {
		b := newBackend(t)
		assert.NoError(t, b.RemoveItem(ctx, "never-set"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.SetItem(ctx, "slot-a", "a"))
		require.NoError(t, b.SetItem(ctx, "slot-b", "b"))
		require.NoError(t, b.RemoveItem(ctx, "slot-a"))
		v, found, err := b.GetItem(ctx, "slot-b")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "b", v)
	})

	t.Run("large unicode value", func(t *testing.T) {
		b := newBackend(t)
		value := `{"text":"` + strings.Repeat("éclat ✨ ", 2000) + `"}`
		require.NoError(t, b.SetItem(ctx, "big", value))
		v, found, err := b.GetItem(ctx, "big")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, value, v)
	})
}
