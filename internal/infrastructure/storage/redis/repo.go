// Package redis caches computed API responses. Everything here is
// best-effort: a dead cache degrades to recomputation, never to an error.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
)

type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "folio"
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string { return c.prefix + ":" + k }

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	return b, true
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Clear deletes every key under prefix; an empty prefix wipes the whole
// namespace. Returns the number of keys removed.
func (c *Cache) Clear(ctx context.Context, prefix string) int {
	pattern := c.key(prefix) + "*"
	removed := 0

	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			removed += c.del(ctx, keys)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
	}
	if len(keys) > 0 {
		removed += c.del(ctx, keys)
	}
	return removed
}

func (c *Cache) del(ctx context.Context, keys []string) int {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		log.Warn().Err(err).Msg("cache delete failed")
		return 0
	}
	return int(n)
}

var _ port.Cache = (*Cache)(nil)
