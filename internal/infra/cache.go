package infra

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL tiers by data volatility.
const (
	TTLRealtime  = time.Minute
	TTLSynthesis = 5 * time.Minute
	TTLStable    = time.Hour
)

const defaultCacheEntries = 1024

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Cache is a namespaced byte cache backed by Redis with an in-process LRU
// fallback. Keys are prefix:<sha256-of-payload> so arbitrary queries become
// fixed-size keys. All failures degrade to a miss; a cache outage must never
// fail a request.
type Cache struct {
	rdb    redis.Cmdable
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	max     int
}

// NewCache creates a new Cache. rdb may be nil, in which case only the
// in-process LRU is used.
func NewCache(rdb redis.Cmdable) *Cache {
	return &Cache{
		rdb:     rdb,
		logger:  log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
		now:     time.Now,
		entries: map[string]*list.Element{},
		order:   list.New(),
		max:     defaultCacheEntries,
	}
}

// Key derives the storage key for a payload within a namespace.
func (c *Cache) Key(namespace, payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for (namespace, payload), if present and not
// expired.
func (c *Cache) Get(ctx context.Context, namespace, payload string) ([]byte, bool) {
	key := c.Key(namespace, payload)
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return val, true
		}
		if err != redis.Nil {
			c.logger.Printf("redis get %s: %v", key, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheEntry)
	if c.now().After(ent.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

// Set stores value under (namespace, payload) for ttl.
func (c *Cache) Set(ctx context.Context, namespace, payload string, value []byte, ttl time.Duration) {
	key := c.Key(namespace, payload)
	if c.rdb != nil {
		if err := c.rdb.SetEx(ctx, key, value, ttl).Err(); err != nil {
			c.logger.Printf("redis setex %s: %v", key, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.value = value
		ent.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: c.now().Add(ttl)})
	c.entries[key] = el
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Delete removes the entry for (namespace, payload).
func (c *Cache) Delete(ctx context.Context, namespace, payload string) {
	key := c.Key(namespace, payload)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.Printf("redis del %s: %v", key, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}
