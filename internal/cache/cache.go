// Package cache is the query-result cache: a memory LRU tier in front of a
// persistent sqlite tier, with per-tier TTLs, hit/miss statistics, and
// predicate invalidation. Storage failures degrade to skip-caching: the
// read path never fails because the cache does.
package cache

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/overseasops/claimgrid/api"
)

// Entry is one cached query result.
type Entry struct {
	Key          string
	Rows         []api.ClaimRecord
	TotalCount   int
	Timestamp    time.Time
	LastAccessed time.Time
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits           uint64
	Misses         uint64
	MemoryHits     uint64
	PersistentHits uint64
	HitRate        float64
	MemorySize     int
	PersistentSize int
}

// Options size the cache.
type Options struct {
	MemoryTTL     time.Duration
	PersistentTTL time.Duration
	MemoryCap     int
	PersistentCap int
}

// Cache is the two-tier query cache. Safe for concurrent use.
type Cache struct {
	opts  Options
	store *Store // nil when the persistent tier is unavailable

	mu  sync.Mutex
	mem *lru.Cache[string, *Entry]

	hits     atomic.Uint64
	misses   atomic.Uint64
	memHits  atomic.Uint64
	persHits atomic.Uint64

	persistCh chan *Entry
	done      chan struct{}
	wg        sync.WaitGroup

	// now is swappable for TTL tests.
	now func() time.Time
}

// New builds a cache. store may be nil: the cache then runs memory-only,
// which is the defined degraded mode for storage failures.
func New(opts Options, store *Store) (*Cache, error) {
	if opts.MemoryCap <= 0 {
		opts.MemoryCap = 64
	}
	if opts.PersistentCap <= 0 {
		opts.PersistentCap = 256
	}
	mem, err := lru.New[string, *Entry](opts.MemoryCap)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		opts:      opts,
		store:     store,
		mem:       mem,
		persistCh: make(chan *Entry, 64),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	if store != nil {
		c.wg.Add(1)
		go c.persistLoop()
	}
	return c, nil
}

// persistLoop is the single writer to the persistent tier. Set never
// blocks on it; a full queue drops the write and the entry simply stays
// memory-only.
func (c *Cache) persistLoop() {
	defer c.wg.Done()
	for {
		select {
		case e := <-c.persistCh:
			if err := c.store.Put(e); err != nil {
				log.Printf("cache: persist %s: %v", e.Key, err)
				continue
			}
			if err := c.store.PurgeExpired(c.opts.PersistentTTL, c.now()); err != nil {
				log.Printf("cache: purge expired: %v", err)
			}
			if err := c.store.EvictLRU(c.opts.PersistentCap); err != nil {
				log.Printf("cache: evict: %v", err)
			}
		case <-c.done:
			return
		}
	}
}

// Get returns the entry for key, consulting the memory tier first and
// promoting persistent hits. Expired entries are treated as absent.
func (c *Cache) Get(key string) (*Entry, bool) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.mem.Get(key); ok {
		if now.Sub(e.Timestamp) < c.opts.MemoryTTL {
			e.LastAccessed = now
			c.mu.Unlock()
			c.hits.Add(1)
			c.memHits.Add(1)
			return e, true
		}
		c.mem.Remove(key)
	}
	c.mu.Unlock()

	if c.store != nil {
		e, err := c.store.Get(key)
		if err != nil {
			log.Printf("cache: read persistent tier: %v", err)
		} else if e != nil && now.Sub(e.Timestamp) < c.opts.PersistentTTL {
			e.LastAccessed = now
			if err := c.store.Touch(key, now); err != nil {
				log.Printf("cache: touch %s: %v", key, err)
			}
			c.mu.Lock()
			c.mem.Add(key, e)
			c.mu.Unlock()
			c.hits.Add(1)
			c.persHits.Add(1)
			return e, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores a query result. The memory tier is written synchronously; the
// persistent write is queued and happens off the caller's path.
func (c *Cache) Set(key string, rows []api.ClaimRecord, totalCount int) {
	now := c.now()
	e := &Entry{
		Key:          key,
		Rows:         rows,
		TotalCount:   totalCount,
		Timestamp:    now,
		LastAccessed: now,
	}
	c.mu.Lock()
	c.mem.Add(key, e)
	c.evictExpiredLocked(now)
	c.mu.Unlock()

	if c.store != nil {
		select {
		case c.persistCh <- e:
		default:
			log.Printf("cache: persist queue full, skipping %s", key)
		}
	}
}

// evictExpiredLocked drops memory-tier entries past TTL. The LRU already
// enforces the cap; only staleness needs an explicit sweep.
func (c *Cache) evictExpiredLocked(now time.Time) {
	for _, k := range c.mem.Keys() {
		if e, ok := c.mem.Peek(k); ok && now.Sub(e.Timestamp) >= c.opts.MemoryTTL {
			c.mem.Remove(k)
		}
	}
}

// Invalidate removes every entry whose key matches pred, in both tiers.
// Used when sort changes but filters do not: entries sharing the filter
// prefix but carrying a stale sort are dropped without a full clear.
func (c *Cache) Invalidate(pred func(key string) bool) {
	c.mu.Lock()
	for _, k := range c.mem.Keys() {
		if pred(k) {
			c.mem.Remove(k)
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	keys, err := c.store.Keys()
	if err != nil {
		log.Printf("cache: list keys for invalidate: %v", err)
		return
	}
	var stale []string
	for _, k := range keys {
		if pred(k) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := c.store.Delete(stale...); err != nil {
		log.Printf("cache: invalidate persistent tier: %v", err)
	}
}

// InvalidatePrefix removes entries whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.Invalidate(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// Clear drops both tiers.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.mem.Purge()
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			log.Printf("cache: clear persistent tier: %v", err)
		}
	}
}

// Stats reports hit/miss counters and tier sizes.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		MemoryHits:     c.memHits.Load(),
		PersistentHits: c.persHits.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	c.mu.Lock()
	s.MemorySize = c.mem.Len()
	c.mu.Unlock()
	if c.store != nil {
		if n, err := c.store.Count(); err == nil {
			s.PersistentSize = n
		}
	}
	return s
}

// Close stops the persist worker and closes the store.
func (c *Cache) Close() error {
	close(c.done)
	c.wg.Wait()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
