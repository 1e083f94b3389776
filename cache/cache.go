// Package cache implements the hot static-file cache: a hash table keyed by
// normalised relative path with singly-linked bucket chains, threaded by one
// doubly-linked LRU list, byte-budgeted and swept for soft-TTL expiry on a
// housekeeping tick. Grounded on the teacher's cluster.LOM in-memory
// metadata cache and its cluster/lom_cache_hk.go hk.Reg-driven sweep.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/catzilla-go/catzilla/hk"
	"github.com/catzilla-go/catzilla/memsys"
	"github.com/catzilla-go/catzilla/stats"
)

const (
	defaultBucketCount = 4096
	defaultSweepEvery  = 60 * time.Second
	defaultEntryTTL    = 10 * time.Minute
	defaultPerEntryCap = 1 << 20 // 1 MB, spec.md step 6's default per-entry cap
)

// Config configures one Cache instance.
type Config struct {
	ByteBudget   int64
	PerEntryCap  int64
	SweepEvery   time.Duration
	EntryTTL     time.Duration
	BucketCount  int
	NegativeCap  uint // cuckoofilter capacity; 0 disables the negative cache
	L3           CacheL3 // optional, nil disables the persistent hook
	HK           *hk.Registry
	Stats        *stats.Registry // optional, nil disables metrics recording
}

func (c *Config) fillDefaults() {
	if c.PerEntryCap <= 0 {
		c.PerEntryCap = defaultPerEntryCap
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = defaultSweepEvery
	}
	if c.EntryTTL <= 0 {
		c.EntryTTL = defaultEntryTTL
	}
	if c.BucketCount <= 0 {
		c.BucketCount = defaultBucketCount
	}
	if c.HK == nil {
		c.HK = hk.Default
	}
}

// entry is one hot cache entry. Bytes are immutable after insertion per
// invariant (3); a put never mutates an existing entry's data in place, it
// replaces the entry wholesale.
type entry struct {
	path        string
	h           memsys.Handle
	size        int64
	etag        string
	insertedAt  int64
	lastAccess  int64 // atomic
	accessCount int64 // atomic
	refs        int32 // atomic, biased +1 for "still in the table"
	retired     int32 // atomic bool

	bucketNext *entry
	lruPrev    *entry
	lruNext    *entry
}

func (e *entry) touch() {
	atomic.StoreInt64(&e.lastAccess, time.Now().UnixNano())
	atomic.AddInt64(&e.accessCount, 1)
}

func (e *entry) acquire() { atomic.AddInt32(&e.refs, 1) }

// release drops a reader's reference; once the table's own +1 has been
// dropped (on eviction/invalidate) and the last reader releases, the
// arena bytes are freed - eviction never reclaims bytes a reader still
// holds, satisfying the reference-counted eviction invariant.
func (e *entry) release(m *memsys.MMSA) {
	if atomic.AddInt32(&e.refs, -1) == 0 {
		m.Free(e.h)
	}
}

// View is a read-only, reference-counted handle onto a cache hit's bytes.
// Callers MUST call Release exactly once when done reading.
type View struct {
	e *entry
	m *memsys.MMSA
}

func (v View) Bytes() []byte { return v.e.h.Bytes() }
func (v View) ETag() string  { return v.e.etag }
func (v View) Size() int64   { return v.e.size }
func (v View) Release()      { v.e.release(v.m) }

// Cache is the hot static-file content cache.
type Cache struct {
	cfg Config
	mm  *memsys.MMSA

	mu      sync.RWMutex
	buckets []*entry
	used    int64
	lruHead *entry // most recently used
	lruTail *entry // least recently used

	neg *negativeCache

	hits, misses int64 // atomic
}

// New constructs a Cache with the given byte budget and starts its sweep
// job on the configured (or Default) housekeeping registry.
func New(mm *memsys.MMSA, byteBudget int64, cfg Config) *Cache {
	cfg.ByteBudget = byteBudget
	cfg.fillDefaults()
	c := &Cache{
		cfg:     cfg,
		mm:      mm,
		buckets: make([]*entry, cfg.BucketCount),
	}
	if cfg.NegativeCap > 0 {
		c.neg = newNegativeCache(cfg.NegativeCap)
	}
	cfg.HK.Reg("cache-sweep", c.sweepTick, cfg.SweepEvery)
	return c
}

func (c *Cache) bucketIdx(path string) int {
	return int(bucketHash(path) % uint64(len(c.buckets)))
}

// Get returns a reference-counted View of path's cached bytes, or ok=false
// on a miss. The caller must Release the view when done.
func (c *Cache) Get(path string) (View, bool) {
	idx := c.bucketIdx(path)

	c.mu.RLock()
	var found *entry
	for e := c.buckets[idx]; e != nil; e = e.bucketNext {
		if e.path == path && atomic.LoadInt32(&e.retired) == 0 {
			found = e
			break
		}
	}
	if found == nil {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		if c.cfg.Stats != nil {
			c.cfg.Stats.RecordCacheMiss()
		}
		return View{}, false
	}
	found.touch()
	found.acquire()
	c.mu.RUnlock()

	// Upgrade to the writer only to reposition the LRU list; the entry
	// itself was already located and ref'd under the read lock, so a
	// concurrent put/evict between the two critical sections is safe -
	// retired is rechecked before touching the list.
	c.mu.Lock()
	if atomic.LoadInt32(&found.retired) == 0 {
		c.moveToFrontLocked(found)
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	if c.cfg.Stats != nil {
		c.cfg.Stats.RecordCacheHit()
	}
	if c.neg != nil {
		c.neg.forget(path)
	}
	return View{e: found, m: c.mm}, true
}

// Put inserts or replaces path's entry. Bytes are copied into a
// cache-arena handle the Cache owns; the caller's slice is never retained.
// Entries above PerEntryCap are rejected (the static server's per-entry cap
// default is 1 MiB per spec.md step 6).
func (c *Cache) Put(path string, data []byte, mtimeUnixNano int64) bool {
	if c.neg != nil {
		c.neg.forget(path)
	}
	size := int64(len(data))
	if size > c.cfg.PerEntryCap || size > c.cfg.ByteBudget {
		return false
	}
	h, ok := c.mm.Alloc(memsys.Cache, len(data))
	if !ok {
		return false
	}
	copy(h.Bytes(), data)

	ne := &entry{
		path:       path,
		h:          h,
		size:       size,
		etag:       computeETag(path, size, mtimeUnixNano),
		insertedAt: time.Now().UnixNano(),
		refs:       1,
	}
	ne.touch()

	idx := c.bucketIdx(path)
	c.mu.Lock()
	defer c.mu.Unlock()

	if old := c.removeFromBucketLocked(idx, path); old != nil {
		c.unlinkLRULocked(old)
		c.used -= old.size
		c.retireLocked(old)
	}

	for c.used+size > c.cfg.ByteBudget && c.evictOneLocked() {
	}
	if c.used+size > c.cfg.ByteBudget {
		// Couldn't make room even with the LRU list emptied - refuse
		// the insert rather than violate the byte budget invariant.
		c.mm.Free(h)
		return false
	}

	ne.bucketNext = c.buckets[idx]
	c.buckets[idx] = ne
	c.pushFrontLocked(ne)
	c.used += size
	if c.cfg.Stats != nil {
		c.cfg.Stats.SetCacheBytes(c.used)
	}

	if c.cfg.L3 != nil {
		_ = c.cfg.L3.Put(path, data)
	}
	return true
}

// Invalidate removes path's entry, if present.
func (c *Cache) Invalidate(path string) {
	idx := c.bucketIdx(path)
	c.mu.Lock()
	old := c.removeFromBucketLocked(idx, path)
	if old != nil {
		c.unlinkLRULocked(old)
		c.used -= old.size
		c.retireLocked(old)
	}
	c.mu.Unlock()
	if c.neg != nil {
		c.neg.forget(path)
	}
	if c.cfg.L3 != nil {
		_ = c.cfg.L3.Delete(path)
	}
}

// Negative cache: ProbablyMissing reports whether path was recently
// confirmed absent; RememberMissing records a confirmed-missing path.
func (c *Cache) ProbablyMissing(path string) bool {
	if c.neg == nil {
		return false
	}
	return c.neg.probablyMissing(path)
}

func (c *Cache) RememberMissing(path string) {
	if c.neg != nil {
		c.neg.rememberMissing(path)
	}
}

// sweepTick is the hk.Func registered at construction: drop entries past
// EntryTTL. Returns 0 so hk reuses the last interval.
func (c *Cache) sweepTick() time.Duration {
	c.Sweep()
	return 0
}

// Sweep drops entries whose last access predates the configured TTL.
func (c *Cache) Sweep() {
	cutoff := time.Now().Add(-c.cfg.EntryTTL).UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lruTail
	for e != nil {
		prev := e.lruPrev
		if atomic.LoadInt64(&e.lastAccess) < cutoff {
			idx := c.bucketIdx(e.path)
			c.removeFromBucketLocked(idx, e.path)
			c.unlinkLRULocked(e)
			c.used -= e.size
			c.retireLocked(e)
		}
		e = prev
	}
}

// Close purges every entry and deregisters the sweep job.
func (c *Cache) Close() {
	c.cfg.HK.Unreg("cache-sweep")
	c.mu.Lock()
	for idx := range c.buckets {
		for e := c.buckets[idx]; e != nil; {
			next := e.bucketNext
			c.retireLocked(e)
			e = next
		}
		c.buckets[idx] = nil
	}
	c.lruHead, c.lruTail = nil, nil
	c.used = 0
	c.mu.Unlock()
}

// Stats is a point-in-time snapshot for the stats/metrics layer.
type Stats struct {
	UsedBytes   int64
	BudgetBytes int64
	Hits        int64
	Misses      int64
	EntryCount  int64
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for e := c.lruHead; e != nil; e = e.lruNext {
		n++
	}
	return Stats{
		UsedBytes:   c.used,
		BudgetBytes: c.cfg.ByteBudget,
		Hits:        atomic.LoadInt64(&c.hits),
		Misses:      atomic.LoadInt64(&c.misses),
		EntryCount:  n,
	}
}

// --- locked helpers; every call below requires c.mu held for writing ---

func (c *Cache) removeFromBucketLocked(idx int, path string) *entry {
	var prev *entry
	for e := c.buckets[idx]; e != nil; e = e.bucketNext {
		if e.path == path {
			if prev == nil {
				c.buckets[idx] = e.bucketNext
			} else {
				prev.bucketNext = e.bucketNext
			}
			e.bucketNext = nil
			return e
		}
		prev = e
	}
	return nil
}

func (c *Cache) pushFrontLocked(e *entry) {
	e.lruPrev = nil
	e.lruNext = c.lruHead
	if c.lruHead != nil {
		c.lruHead.lruPrev = e
	}
	c.lruHead = e
	if c.lruTail == nil {
		c.lruTail = e
	}
}

func (c *Cache) unlinkLRULocked(e *entry) {
	if e.lruPrev != nil {
		e.lruPrev.lruNext = e.lruNext
	} else {
		c.lruHead = e.lruNext
	}
	if e.lruNext != nil {
		e.lruNext.lruPrev = e.lruPrev
	} else {
		c.lruTail = e.lruPrev
	}
	e.lruPrev, e.lruNext = nil, nil
}

func (c *Cache) moveToFrontLocked(e *entry) {
	if c.lruHead == e {
		return
	}
	c.unlinkLRULocked(e)
	c.pushFrontLocked(e)
}

// retireLocked marks e unreachable from the table and LRU list (both of
// which the caller has already unlinked it from) and drops the table's own
// reference; bytes free once the last outstanding reader's View.Release
// also drops to zero.
func (c *Cache) retireLocked(e *entry) {
	atomic.StoreInt32(&e.retired, 1)
	e.release(c.mm)
}

// evictOneLocked evicts the LRU tail, if any. Returns false when the cache
// is already empty.
func (c *Cache) evictOneLocked() bool {
	e := c.lruTail
	if e == nil {
		return false
	}
	idx := c.bucketIdx(e.path)
	c.removeFromBucketLocked(idx, e.path)
	c.unlinkLRULocked(e)
	c.used -= e.size
	c.retireLocked(e)
	if c.cfg.Stats != nil {
		c.cfg.Stats.RecordCacheEviction()
		c.cfg.Stats.SetCacheBytes(c.used)
	}
	return true
}
