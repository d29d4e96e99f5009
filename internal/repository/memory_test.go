package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMenuCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGetMenu", func(t *testing.T) {
		cache := NewMemoryMenuCache(time.Hour)

		require.NoError(t, cache.SetMenu(ctx, sampleMenu()))

		got, err := cache.GetMenu(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Cheeseburger", got[0].Name)
	})

	t.Run("MissBeforeSet", func(t *testing.T) {
		cache := NewMemoryMenuCache(time.Hour)

		got, err := cache.GetMenu(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		cache := NewMemoryMenuCache(time.Hour)
		require.NoError(t, cache.SetMenu(ctx, sampleMenu()))

		require.NoError(t, cache.Invalidate(ctx))

		got, err := cache.GetMenu(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		cache := NewMemoryMenuCache(time.Millisecond)
		require.NoError(t, cache.SetMenu(ctx, sampleMenu()))

		time.Sleep(5 * time.Millisecond)

		got, err := cache.GetMenu(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SnapshotIsCopied", func(t *testing.T) {
		cache := NewMemoryMenuCache(time.Hour)
		menu := sampleMenu()
		require.NoError(t, cache.SetMenu(ctx, menu))

		// мутация исходного среза не должна протекать в кэш
		menu[0].Name = "mutated"

		got, err := cache.GetMenu(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Cheeseburger", got[0].Name)
	})
}
