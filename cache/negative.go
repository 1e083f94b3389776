package cache

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// negativeCache remembers recently-confirmed-missing paths so the static
// server can short-circuit a repeat 404 without touching the filesystem.
// A cuckoo filter allows false positives (a redundant stat) but never false
// negatives for paths that were actually recorded missing - and both Put
// and Invalidate on the owning Cache always also forget the path here, so
// an existing file can never be shadowed by a stale negative entry.
type negativeCache struct {
	mu  sync.Mutex
	cap uint
	f   *cuckoo.Filter
}

func newNegativeCache(capacity uint) *negativeCache {
	return &negativeCache{cap: capacity, f: cuckoo.NewFilter(capacity)}
}

func (n *negativeCache) rememberMissing(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.f.InsertUnique([]byte(path)) {
		// Filter saturated: rebuild empty rather than leaving it stuck
		// always-positive, since a saturated cuckoo filter degrades to
		// "everything probably present", which would defeat the point.
		n.f = cuckoo.NewFilter(n.cap)
	}
}

func (n *negativeCache) probablyMissing(path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.f.Lookup([]byte(path))
}

func (n *negativeCache) forget(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.f.Delete([]byte(path))
}
