package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

const defaultTTL = time.Minute * 10

// Cache is a small TTL cache in front of ristretto. Writes are waited on so a
// Get immediately after a Set observes the value.
type Cache struct {
	cache *ristretto.Cache
}

func New() (*Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency of.
		MaxCost:     1 << 10, // every entry costs 1.
		BufferItems: 64,      // number of keys per Get buffer.
	})
	if err != nil {
		return nil, err
	}

	return &Cache{
		cache: cache,
	}, nil
}

func (c *Cache) Set(key interface{}, value interface{}) {
	c.SetWithTTL(key, value, defaultTTL)
}

func (c *Cache) Get(key interface{}) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *Cache) SetWithTTL(key interface{}, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.cache.SetWithTTL(key, value, 1, ttl)
	c.cache.Wait()
}

func (c *Cache) Del(key interface{}) {
	c.cache.Del(key)
}

func (c *Cache) Close() {
	c.cache.Close()
}
