// Package memsys provides the typed arena allocator: five named allocation
// domains, each handing out size-classed buffers with thread-safe
// alloc/realloc/free and process-wide usage statistics. A Go module has no
// jemalloc arena index to bind to without cgo, so every arena is backed by
// the platform allocator via a sync.Pool ladder - honest about which arena a
// buffer came from by tagging the returned Handle, so a debug build can
// catch a free issued against the wrong arena (see cmn/debug).
package memsys

import (
	"github.com/catzilla-go/catzilla/cmn/debug"
)

// ArenaID identifies one of the five named arenas. It travels with every
// Handle so a mismatched Free is a tagged-value check, not a developer
// convention to remember.
type ArenaID uint32

const (
	Request ArenaID = iota
	Response
	Cache
	Static
	Task
	numArenas
)

func (a ArenaID) String() string {
	switch a {
	case Request:
		return "request"
	case Response:
		return "response"
	case Cache:
		return "cache"
	case Static:
		return "static"
	case Task:
		return "task"
	default:
		return "unknown"
	}
}

// sizeClasses are the slab buckets each arena pools, chosen to cover the
// small-header / medium-body / large-payload shapes described across the
// static server, the cache, and the upload pipeline.
var sizeClasses = []int{256, 4 << 10, 64 << 10, 1 << 20}

func classFor(size int) (int, bool) {
	for _, c := range sizeClasses {
		if size <= c {
			return c, true
		}
	}
	return 0, false
}

// Handle is a typed pointer into one arena: it carries its arena identity
// explicitly rather than relying on the caller to remember which
// alloc/free pair it came from.
type Handle struct {
	arena ArenaID
	buf   []byte
	class int // -1 if allocated outside the pooled size classes
}

// Bytes returns the handle's backing slice, length-capped to the requested
// size at allocation time.
func (h *Handle) Bytes() []byte { return h.buf }

// MMSA ("memory management - slab allocator") is the process-wide arena
// manager. One instance is normally shared by a whole server, mirroring the
// single shared memsys.MMSA the teacher threads through its components.
type MMSA struct {
	arenas [numArenas]*arena
	stats  Stats
}

// New constructs an MMSA with all five arenas ready to allocate. Init is
// idempotent: constructing a second MMSA doesn't disturb the first one's
// counters, since each owns its own Stats.
func New() *MMSA {
	m := &MMSA{}
	for i := range m.arenas {
		m.arenas[i] = newArena(ArenaID(i))
	}
	return m
}

// Alloc returns a zero-length-safe buffer of at least size bytes from the
// named arena. It never panics on allocation failure - per the allocator
// contract, OOM returns a nil Handle rather than aborting the process.
func (m *MMSA) Alloc(id ArenaID, size int) (Handle, bool) {
	debug.Assert(id < numArenas, "memsys: invalid arena id")
	buf, class, ok := m.arenas[id].alloc(size)
	if !ok {
		m.stats.recordOOM(id)
		return Handle{}, false
	}
	m.stats.recordAlloc(id, int64(len(buf)))
	return Handle{arena: id, buf: buf, class: class}, true
}

// Realloc grows (or shrinks) h in place where possible, otherwise allocates
// a fresh buffer in the same arena and copies the overlapping prefix.
func (m *MMSA) Realloc(h Handle, size int) (Handle, bool) {
	if len(h.buf) >= size {
		h.buf = h.buf[:size]
		return h, true
	}
	nh, ok := m.Alloc(h.arena, size)
	if !ok {
		return Handle{}, false
	}
	copy(nh.buf, h.buf)
	m.Free(h)
	return nh, true
}

// Free returns h's buffer to its owning arena. In debug builds, freeing a
// handle tagged for one arena against a different arena's free path is
// impossible by construction here - the arena id always travels with the
// handle - but a caller constructing a Handle by hand (rather than via
// Alloc) and passing a forged arena id is still caught.
func (m *MMSA) Free(h Handle) {
	if h.buf == nil {
		return
	}
	debug.Assert(h.arena < numArenas, "memsys: free of handle with invalid arena id")
	m.arenas[h.arena].free(h.buf, h.class)
	m.stats.recordFree(h.arena, int64(len(h.buf)))
}

// Purge asks the named arena to release idle slabs. It is advisory: a slab
// that's still referenced elsewhere is simply not returned to the pool.
func (m *MMSA) Purge(id ArenaID) {
	debug.Assert(id < numArenas, "memsys: invalid arena id")
	m.arenas[id].purge()
}

// PurgeAll purges every arena. Nothing in this module calls it on its own;
// it is there for a host that wants to purge all arenas at once.
func (m *MMSA) PurgeAll() {
	for i := range m.arenas {
		m.arenas[i].purge()
	}
}

// Stats returns a snapshot of the process-wide allocation statistics.
func (m *MMSA) Stats() Snapshot { return m.stats.snapshot() }
