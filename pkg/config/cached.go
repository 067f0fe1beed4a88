package config

import (
	"context"
	"time"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/store"
)

const cachePrefix = "cfg:"

// Cached layers a TTL cache in front of a Store. Cache failures fall
// through to the backing store; a missing key is cached as a tombstone so
// hot misses do not hammer the database.
type Cached struct {
	next  Store
	cache store.Cache
	ttl   time.Duration
}

const missTombstone = "\x00miss"

func NewCached(next Store, cache store.Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Get(ctx context.Context, key string) (string, bool, error) {
	if c.cache != nil {
		if val, err := c.cache.Get(ctx, cachePrefix+key); err == nil {
			if val == missTombstone {
				return "", false, nil
			}
			return val, true, nil
		}
	}
	val, ok, err := c.next.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if c.cache != nil {
		cached := val
		if !ok {
			cached = missTombstone
		}
		_ = c.cache.Set(ctx, cachePrefix+key, cached, c.ttl)
	}
	return val, ok, nil
}

// Invalidate drops one key from the cache after a configuration write.
func (c *Cached) Invalidate(ctx context.Context, key string) {
	if c.cache != nil {
		_ = c.cache.Del(ctx, cachePrefix+key)
	}
}
