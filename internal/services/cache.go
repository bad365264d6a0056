package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/internal/database"
)

// Cache key prefixes. Every key is "<prefix><user id>" or
// "<prefix><user id>:<qualifier>", so per-user invalidation is a prefix
// delete.
const (
	profileKeyPrefix     = "profile:"
	rankedListKeyPrefix  = "ranked:"
	explanationKeyPrefix = "explanation:"
)

// CacheTiers groups the three independent result caches. Each tier has its
// own TTL and can be invalidated without touching the others.
type CacheTiers struct {
	Profile     Cache
	RankedList  Cache
	Explanation Cache

	ProfileTTL     time.Duration
	RankedListTTL  time.Duration
	ExplanationTTL time.Duration
}

// NewCacheTiers maps the hot/warm/cold Redis clients onto the profile,
// ranked-list and explanation tiers.
func NewCacheTiers(clients *database.RedisClients, cfg *config.CachingConfig, logger *logrus.Logger) *CacheTiers {
	return &CacheTiers{
		Profile:        NewRedisCache(clients.Hot, logger),
		RankedList:     NewRedisCache(clients.Warm, logger),
		Explanation:    NewRedisCache(clients.Cold, logger),
		ProfileTTL:     cfg.ProfileTTL,
		RankedListTTL:  cfg.RankedListTTL,
		ExplanationTTL: cfg.ExplanationTTL,
	}
}

// NewMemoryCacheTiers builds in-process tiers, used in tests and as a
// degraded mode when Redis is not configured.
func NewMemoryCacheTiers(cfg *config.CachingConfig) *CacheTiers {
	return &CacheTiers{
		Profile:        NewMemoryCache(),
		RankedList:     NewMemoryCache(),
		Explanation:    NewMemoryCache(),
		ProfileTTL:     cfg.ProfileTTL,
		RankedListTTL:  cfg.RankedListTTL,
		ExplanationTTL: cfg.ExplanationTTL,
	}
}

// RedisCache is the production Cache backed by one Redis client.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// MemoryCache is a small TTL map. Writes are last-writer-wins, which is
// acceptable because cache entries are idempotent recomputations.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}
