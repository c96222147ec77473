// Package cache keeps completed itineraries keyed by the request that
// produced them so equivalent requests skip the pipeline.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/model"
)

// DefaultTTL is how long a cached plan stays valid.
const DefaultTTL = 24 * time.Hour

// Cache stores finished itineraries. Get reports a miss for any failure.
type Cache interface {
	Get(ctx context.Context, hash string) (*model.Itinerary, bool)
	Put(ctx context.Context, hash string, doc *model.Itinerary) error
}

// SearchHash returns the hex xxhash64 of the request's search key.
func SearchHash(req model.Request) string {
	return strconv.FormatUint(xxhash.Sum64String(req.SearchKey()), 16)
}

// Nop never hits and discards writes.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (*model.Itinerary, bool) { return nil, false }

// Put discards doc.
func (Nop) Put(context.Context, string, *model.Itinerary) error { return nil }

// RedisCache stores itineraries as JSON under <prefix>/trips/<hash>.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultTTL.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the redis key for hash.
func (c *RedisCache) Key(hash string) string {
	return path.Join(c.prefix, "trips", hash)
}

// Get loads the itinerary cached under hash.
func (c *RedisCache) Get(ctx context.Context, hash string) (*model.Itinerary, bool) {
	data, err := c.client.Get(ctx, c.Key(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache: get failed", zap.String("hash", hash), zap.Error(err))
		}
		return nil, false
	}
	var doc model.Itinerary
	if err := json.Unmarshal(data, &doc); err != nil {
		zap.L().Warn("cache: corrupt entry", zap.String("hash", hash), zap.Error(err))
		return nil, false
	}
	return &doc, true
}

// Put stores doc under hash with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, hash string, doc *model.Itinerary) error {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "cache: marshal itinerary")
	}
	if err := c.client.Set(ctx, c.Key(hash), data, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: set")
	}
	return nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
