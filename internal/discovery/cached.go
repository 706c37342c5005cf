package discovery

import (
	"context"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Default cache settings.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Second
)

// CachedSource caches instance lists of another Source for a TTL.
// Concurrent misses for one service share a single upstream lookup.
// Errors are not cached.
type CachedSource struct {
	source Source
	lru    *expirable.LRU[string, []Instance]
	group  singleflight.Group
}

// NewCachedSource wraps source with a cache of size entries.
func NewCachedSource(source Source, size int, ttl time.Duration) *CachedSource {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		source: source,
		lru:    expirable.NewLRU[string, []Instance](size, nil, ttl),
	}
}

// Instances implements Source.
func (c *CachedSource) Instances(ctx context.Context, service string) ([]Instance, error) {
	key := normalizeService(service)
	if cached, ok := c.lru.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		instances, err := c.source.Instances(ctx, service)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, instances)
		return instances, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Instance), nil
}

// Invalidate drops the cached list of service.
func (c *CachedSource) Invalidate(service string) {
	c.lru.Remove(normalizeService(service))
}

// Purge drops every cached list.
func (c *CachedSource) Purge() {
	c.lru.Purge()
}
