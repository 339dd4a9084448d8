package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"Go_Drop/model"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON encoded values with an expiration.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// Get reads a cached value.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Set writes a cached value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(data), expiration).Err()
}

// Delete removes a cache entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// DeleteByPrefix deletes cache entries whose key starts with prefix.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

// MemoryCache keeps entries in process memory. Values are stored JSON
// encoded so callers observe the same copy semantics as RedisCache.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: gocache.New(5*time.Minute, 10*time.Minute)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.store.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	c.store.Set(key, data, expiration)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
	return nil
}

// NewCache picks the Redis cache when a client is available.
func NewCache(rdb *redis.Client) Cache {
	if rdb == nil {
		return NewMemoryCache()
	}
	return NewRedisCache(rdb)
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const (
	CacheKeyUserFileList        = "user:file:list"
	CacheKeyPendingRegistration = "user:pending"
)

const FileListCacheTTL = 5 * time.Minute

type FileListCache struct {
	Files []model.FileRecord `json:"files"`
	Total int64              `json:"total"`
}

// GetUserFileListFromCache reads a cached file list page.
func GetUserFileListFromCache(ctx context.Context, cache Cache, userId uint64, source string, page, pageSize int) (*FileListCache, bool) {
	key := BuildCacheKey(CacheKeyUserFileList, userId, source, page, pageSize)
	var result FileListCache
	if err := cache.Get(ctx, key, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// SetUserFileListToCache writes a cached file list page.
func SetUserFileListToCache(ctx context.Context, cache Cache, userId uint64, source string, page, pageSize int, data *FileListCache) error {
	key := BuildCacheKey(CacheKeyUserFileList, userId, source, page, pageSize)
	return cache.Set(ctx, key, data, FileListCacheTTL)
}

// InvalidateUserFileListCache clears every cached list page of a user.
func InvalidateUserFileListCache(ctx context.Context, cache Cache, userId uint64) error {
	return cache.DeleteByPrefix(ctx, BuildCacheKey(CacheKeyUserFileList, userId)+":")
}
