package event

import (
	"time"

	"github.com/ReneKroon/ttlcache"
)

// Deadlines tracks keys that expire after a per-key TTL. onExpire is invoked
// on the cache's own goroutine, so callers that need serialization must hand
// the key off to their own loop.
type Deadlines struct {
	cache *ttlcache.Cache
}

func NewDeadlines(onExpire func(key string)) *Deadlines {
	cache := ttlcache.NewCache()
	cache.SkipTtlExtensionOnHit(true)
	cache.SetExpirationCallback(func(key string, _ interface{}) {
		onExpire(key)
	})
	return &Deadlines{cache: cache}
}

func (d *Deadlines) Track(key string, ttl time.Duration) {
	d.cache.SetWithTTL(key, time.Now().Add(ttl), ttl)
}

func (d *Deadlines) Cancel(key string) {
	d.cache.Remove(key)
}

func (d *Deadlines) Len() int {
	return d.cache.Count()
}

func (d *Deadlines) Close() {
	d.cache.Close()
}
