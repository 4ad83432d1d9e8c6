package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"matchBack/internal/models"
)

const catalogCacheKey = "iap:catalog:active"

// CatalogSource is anything that can list active catalog rows.
type CatalogSource interface {
	ActiveEntries(ctx context.Context) ([]models.CatalogEntry, error)
}

// Logger provides minimal logging required by the repositories.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// CacheClient is the subset of *redis.Client the catalog cache uses.
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedCatalog serves active catalog rows from Redis and falls through to
// the source on a miss. A Redis outage only costs the cache.
type CachedCatalog struct {
	source CatalogSource
	rdb    CacheClient
	ttl    time.Duration
	logger Logger
}

func NewCachedCatalog(source CatalogSource, rdb CacheClient, ttl time.Duration, logger Logger) *CachedCatalog {
	return &CachedCatalog{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) ActiveEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	raw, err := c.rdb.Get(ctx, catalogCacheKey).Bytes()
	switch {
	case err == nil:
		var entries []models.CatalogEntry
		if jerr := json.Unmarshal(raw, &entries); jerr == nil {
			return entries, nil
		}
		c.logger.Errorf("catalog cache: corrupt entry, reloading")
	case !errors.Is(err, redis.Nil):
		c.logger.Errorf("catalog cache: get: %v", err)
	}

	entries, err := c.source.ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	if data, jerr := json.Marshal(entries); jerr == nil {
		if serr := c.rdb.Set(ctx, catalogCacheKey, data, c.ttl).Err(); serr != nil {
			c.logger.Errorf("catalog cache: set: %v", serr)
		}
	}
	return entries, nil
}

// Invalidate drops the cached rows so the next read hits the source.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogCacheKey).Err()
}
