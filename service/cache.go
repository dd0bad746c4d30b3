package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by RowCache.Get when nothing is stored
var ErrCacheMiss = errors.New("cache miss")

// RowCache stores fetched worksheet rows by key
type RowCache interface {
	Get(ctx context.Context, key string) ([]model.Row, error)
	Set(ctx context.Context, key string, rows []model.Row, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisRowCache keeps rows as JSON strings in redis so several dashboard
// instances share one fetch per TTL
type RedisRowCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRowCache(cfg *config.RedisConfig) *RedisRowCache {
	return &RedisRowCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.KeyPrefix,
	}
}

// Ping checks the redis connection
func (c *RedisRowCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRowCache) Close() error {
	return c.client.Close()
}

func (c *RedisRowCache) Get(ctx context.Context, key string) ([]model.Row, error) {
	str, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var rows []model.Row
	if err := json.Unmarshal([]byte(str), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *RedisRowCache) Set(ctx context.Context, key string, rows []model.Row, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisRowCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// CachedSource puts a RowCache in front of another RowSource. Cache errors
// are logged and fall through to the source; they never fail a fetch.
type CachedSource struct {
	source RowSource
	cache  RowCache
	ttl    time.Duration
}

func NewCachedSource(source RowSource, cache RowCache, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, cache: cache, ttl: ttl}
}

func (s *CachedSource) FetchRows(ctx context.Context, spreadsheet, worksheet string) ([]model.Row, error) {
	key := cacheKey(spreadsheet, worksheet)

	rows, err := s.cache.Get(ctx, key)
	if err == nil {
		logger.Debug(ctx, "Row cache hit", "key", key, "rows", len(rows))
		return rows, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn(ctx, "Row cache read failed", "key", key, "error", err)
	}

	rows, err = s.source.FetchRows(ctx, spreadsheet, worksheet)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, rows, s.ttl); err != nil {
		logger.Warn(ctx, "Row cache write failed", "key", key, "error", err)
	}
	return rows, nil
}

// Forget drops the cached rows so the next fetch reaches the source
func (s *CachedSource) Forget(ctx context.Context, spreadsheet, worksheet string) error {
	return s.cache.Delete(ctx, cacheKey(spreadsheet, worksheet))
}

func cacheKey(spreadsheet, worksheet string) string {
	return spreadsheet + "|" + worksheet
}
