package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CacheManager is a two tier JSON cache: an in-process go-cache in front of
// an optional Redis/Valkey server shared between instances.
type CacheManager struct {
	local  *cache.Cache
	ttl    time.Duration
	client *redis.Client
	prefix string
}

// NewCacheManager creates the cache. Redis is optional: if it is disabled
// or the ping fails the manager runs with the local tier only.
func NewCacheManager(ctx context.Context, ttl time.Duration, cfg config.CacheConfig) *CacheManager {
	cm := &CacheManager{
		local:  cache.New(ttl, 2*ttl),
		ttl:    ttl,
		prefix: "weatherdash:",
	}

	if !cfg.Enabled {
		return cm
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return cm
	}

	cm.client = client
	return cm
}

// RedisEnabled reports whether the shared tier is active
func (cm *CacheManager) RedisEnabled() bool {
	return cm.client != nil
}

// Get decodes the cached value for key into dst. It reports whether a
// value was found in either tier.
func (cm *CacheManager) Get(ctx context.Context, key string, dst interface{}) bool {
	if raw, ok := cm.local.Get(key); ok {
		if err := json.Unmarshal(raw.([]byte), dst); err == nil {
			metrics.RecordCacheHit("memory")
			return true
		}
	}
	metrics.RecordCacheMiss("memory")

	if cm.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	raw, err := cm.client.Get(ctx, cm.prefix+key).Bytes()
	if err != nil {
		metrics.RecordCacheMiss("redis")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.RecordCacheMiss("redis")
		return false
	}

	metrics.RecordCacheHit("redis")
	cm.local.Set(key, raw, cache.DefaultExpiration)
	return true
}

// Set stores value in both tiers with the configured TTL
func (cm *CacheManager) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cm.local.Set(key, raw, cache.DefaultExpiration)
	metrics.UpdateCacheSize("memory", cm.local.ItemCount())

	if cm.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return cm.client.Set(ctx, cm.prefix+key, raw, cm.ttl).Err()
}

// Delete removes key from both tiers
func (cm *CacheManager) Delete(ctx context.Context, key string) error {
	cm.local.Delete(key)

	if cm.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return cm.client.Del(ctx, cm.prefix+key).Err()
}

// Flush clears the local tier. Redis entries expire on their own.
func (cm *CacheManager) Flush() {
	cm.local.Flush()
	metrics.UpdateCacheSize("memory", 0)
}

// Ping checks the shared tier, if any
func (cm *CacheManager) Ping(ctx context.Context) error {
	if cm.client == nil {
		return nil
	}
	return cm.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool
func (cm *CacheManager) Close() error {
	if cm.client == nil {
		return nil
	}
	return cm.client.Close()
}
