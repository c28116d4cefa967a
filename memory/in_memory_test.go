package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_SearchRanksByOverlap(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Store(ctx, "s1", "The user prefers metric units.", map[string]any{"kind": "preference"})
	require.NoError(t, err)
	_, err = store.Store(ctx, "s1", "Invoice #42 was paid in March.", nil)
	require.NoError(t, err)
	newest, err := store.Store(ctx, "s1", "Metric reports are sent weekly.", nil)
	require.NoError(t, err)

	results, err := store.Search(ctx, "s1", "metric units", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "The user prefers metric units.", results[0].Content)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "preference", results[0].Metadata["kind"])
	assert.Equal(t, newest, results[1].ID)
	assert.Equal(t, 0.5, results[1].Score)

	none, err := store.Search(ctx, "s1", "weather", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	other, err := store.Search(ctx, "s2", "metric", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInMemoryStore_EmptyQueryAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for _, c := range []string{"one", "two", "three"} {
		_, err := store.Store(ctx, "s1", c, nil)
		require.NoError(t, err)
	}

	results, err := store.Search(ctx, "s1", "", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "three", results[0].Content, "newest first on ties")

	_, err = store.Store(ctx, "s1", "   ", nil)
	assert.Error(t, err)
}

func TestInMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	id, err := store.Store(ctx, "s1", "remember the milk", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "s1", id))
	assert.ErrorIs(t, store.Delete(ctx, "s1", id), ErrNotFound)

	results, err := store.Search(ctx, "s1", "milk", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Store(ctx, "s1", "note about agents", nil)
			assert.NoError(t, err)
			_, _ = store.Search(ctx, "s1", "agents", 5)
		}()
	}
	wg.Wait()

	results, err := store.Search(ctx, "s1", "agents", 0)
	require.NoError(t, err)
	assert.Len(t, results, 50)
}
