package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go_Drop/model"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var got map[string]int
	assert.ErrorIs(t, c.Get(ctx, "absent", &got), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	var v string
	assert.ErrorIs(t, c.Get(ctx, "short", &v), ErrCacheMiss)
}

func TestFileListCacheInvalidationIsPerUser(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	page := &FileListCache{Files: []model.FileRecord{{ID: 3, Filename: "x.txt"}}, Total: 1}

	require.NoError(t, SetUserFileListToCache(ctx, c, 1, "", 1, 50, page))
	require.NoError(t, SetUserFileListToCache(ctx, c, 1, "phone", 2, 50, page))
	require.NoError(t, SetUserFileListToCache(ctx, c, 11, "", 1, 50, page))

	cached, ok := GetUserFileListFromCache(ctx, c, 1, "", 1, 50)
	require.True(t, ok)
	assert.Equal(t, int64(1), cached.Total)
	assert.Equal(t, "x.txt", cached.Files[0].Filename)

	require.NoError(t, InvalidateUserFileListCache(ctx, c, 1))
	_, ok = GetUserFileListFromCache(ctx, c, 1, "", 1, 50)
	assert.False(t, ok)
	_, ok = GetUserFileListFromCache(ctx, c, 1, "phone", 2, 50)
	assert.False(t, ok)
	_, ok = GetUserFileListFromCache(ctx, c, 11, "", 1, 50)
	assert.True(t, ok, "user 11 shares the prefix digits but not the key")
}

func TestNewCacheFallsBackToMemory(t *testing.T) {
	_, ok := NewCache(nil).(*MemoryCache)
	assert.True(t, ok)
}
