package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "enrich:cache"

// RedisCache stores entries as JSON strings whose Redis TTL matches the
// entry expiry.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	opts   options
}

// NewRedisCache creates a cache on rdb. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{rdb: rdb, prefix: prefix, opts: buildOptions(opts)}
}

// keySegment percent-encodes the separator and glob characters so an id can
// neither span segments nor widen a SCAN pattern. Plain ids are unchanged.
var keySegment = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"*", "%2A",
	"?", "%3F",
	"[", "%5B",
	"]", "%5D",
	`\`, "%5C",
)

func (c *RedisCache) key(tenantID, contactID, field string) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, keySegment.Replace(tenantID), keySegment.Replace(contactID), keySegment.Replace(field))
}

func (c *RedisCache) contactPattern(tenantID, contactID string) string {
	return fmt.Sprintf("%s:%s:%s:*", c.prefix, keySegment.Replace(tenantID), keySegment.Replace(contactID))
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	raw, err := c.rdb.Get(ctx, c.key(tenantID, contactID, field)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: redis get")
	}
	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, eris.Wrap(err, "cache: decode entry")
	}
	if e.Expired(c.opts.nowFunc()) {
		return nil, nil
	}
	return &e, nil
}

// Set implements Cache. Entries already past expiry are not written.
func (c *RedisCache) Set(ctx context.Context, entry model.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(c.opts.nowFunc())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "cache: encode entry")
	}

	if err := c.rdb.Set(ctx, c.key(entry.TenantID, entry.ContactID, entry.Field), data, ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: redis set")
	}
	return nil
}

// Invalidate implements Cache. Clearing a whole contact scans its keys.
func (c *RedisCache) Invalidate(ctx context.Context, tenantID, contactID, field string) error {
	if field != "" {
		if err := c.rdb.Del(ctx, c.key(tenantID, contactID, field)).Err(); err != nil {
			return eris.Wrap(err, "cache: redis invalidate field")
		}
		return nil
	}

	var keys []string
	iter := c.rdb.Scan(ctx, 0, c.contactPattern(tenantID, contactID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "cache: redis scan contact")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return eris.Wrap(err, "cache: redis invalidate contact")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
