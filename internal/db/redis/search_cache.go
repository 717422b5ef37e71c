package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

const searchCachePrefix = "athlete:search:"

// SearchCache 搜索结果 Redis 缓存。任何写操作后由协调器整体失效。
type SearchCache struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewSearchCache 创建搜索缓存，ttl <= 0 时取 1 分钟
func NewSearchCache(rdb redis.Cmdable, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SearchCache{redis: rdb, ttl: ttl}
}

// Get 读取缓存，未命中或解析失败都按未命中处理
func (c *SearchCache) Get(ctx context.Context, store record.Store, filter record.FilterSpec) (*record.Result, bool) {
	key, err := cacheKey(store, filter)
	if err != nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result record.Result
	if err := json.Unmarshal(data, &result); err != nil {
		applog.Warn("[SearchCache] Failed to unmarshal cached result", "key", key, "error", err)
		return nil, false
	}
	if result.Documents == nil {
		result.Documents = []record.Document{}
	}

	applog.Debug("[SearchCache] Hit", "key", key, "store", store)
	return &result, true
}

// Set 写入缓存，失败只记日志
func (c *SearchCache) Set(ctx context.Context, store record.Store, filter record.FilterSpec, result *record.Result) {
	key, err := cacheKey(store, filter)
	if err != nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[SearchCache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除所有搜索缓存
func (c *SearchCache) InvalidateAll(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, searchCachePrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		applog.Warn("[SearchCache] Scan failed", "error", err)
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			applog.Warn("[SearchCache] Invalidate failed", "error", err)
			return
		}
		applog.Info("[SearchCache] Invalidated", "keys_deleted", len(keys))
	}
}

// cacheKey = hash(store + 有序过滤条件)
func cacheKey(store record.Store, filter record.FilterSpec) (string, error) {
	raw, err := json.Marshal(filter.Fields)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(append([]byte(string(store)+"|"), raw...))
	return searchCachePrefix + fmt.Sprintf("%x", hash[:12]), nil
}
