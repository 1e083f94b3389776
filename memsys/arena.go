package memsys

import "sync"

// arena is one named allocation domain: a sync.Pool per size class plus a
// tally of bytes currently checked out. MemPressure does not read this
// tally; it sums the per-arena byte counts kept in Stats.
type arena struct {
	id     ArenaID
	pools  []sync.Pool
	inUse  int64 // bytes currently allocated from this arena
	mu     sync.Mutex
}

func newArena(id ArenaID) *arena {
	a := &arena{id: id, pools: make([]sync.Pool, len(sizeClasses))}
	for i, c := range sizeClasses {
		size := c
		a.pools[i].New = func() interface{} { return make([]byte, size) }
	}
	return a
}

// alloc MUST NOT hold a's lock across the actual allocation call - the
// lock here only protects the inUse counter, never the pool operation
// itself, matching the "no lock held across an allocation call" contract.
func (a *arena) alloc(size int) (buf []byte, classIdx int, ok bool) {
	if size < 0 {
		return nil, 0, false
	}
	class, found := classFor(size)
	if !found {
		// Oversized allocation: fall back to a direct, unpooled slice
		// rather than failing - the spec only requires alloc to report
		// OOM on genuine exhaustion, not on a size the pool ladder
		// doesn't cover.
		buf = make([]byte, size)
		a.bump(int64(len(buf)))
		return buf, -1, true
	}
	for i, c := range sizeClasses {
		if c == class {
			classIdx = i
			break
		}
	}
	buf = a.pools[classIdx].Get().([]byte)[:size]
	a.bump(int64(len(buf)))
	return buf, classIdx, true
}

func (a *arena) free(buf []byte, classIdx int) {
	a.bump(-int64(len(buf)))
	if classIdx < 0 {
		return // unpooled oversized buffer, let GC reclaim it
	}
	full := buf[:cap(buf)]
	a.pools[classIdx].Put(full) //nolint:staticcheck // buf, not &buf: small/fixed-size slices are fine to pool by value
}

func (a *arena) bump(delta int64) {
	a.mu.Lock()
	a.inUse += delta
	a.mu.Unlock()
}

func (a *arena) bytesInUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// purge drops every pooled slab for this arena so the runtime may collect
// them. It is advisory: buffers currently checked out to a caller are
// obviously unaffected.
func (a *arena) purge() {
	for i := range a.pools {
		a.pools[i] = sync.Pool{New: a.pools[i].New}
	}
}
