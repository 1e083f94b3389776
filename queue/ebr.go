package queue

import "sync"

// epoch is a minimal 3-bucket epoch-based reclamation scheme. Michael-Scott
// dequeue retires the old head node on every successful pop; rather than
// hand it back to the runtime immediately (which would let a concurrent
// reader that loaded the old head a moment earlier dereference freed
// state, or - since nodes are pooled for reuse - let a *new* enqueue reuse
// the same node address while a lagging reader still holds a stale
// reference, the classic ABA hazard) retirement defers reuse until no
// goroutine that could still be observing it is pinned.
type epoch struct {
	mu          sync.Mutex
	global      uint64
	active      [3]int64
	retireLists [3][]*node
	pool        sync.Pool
}

func newEpoch() *epoch {
	e := &epoch{}
	e.pool.New = func() interface{} { return &node{} }
	return e
}

// pin marks the calling goroutine as observing the current epoch for the
// duration of one queue operation; it returns the bucket index to pass to
// unpin.
func (e *epoch) pin() int {
	e.mu.Lock()
	idx := int(e.global % 3)
	e.active[idx]++
	e.mu.Unlock()
	return idx
}

func (e *epoch) unpin(idx int) {
	e.mu.Lock()
	e.active[idx]--
	e.mu.Unlock()
}

// retire defers n for reuse until it's safe, then opportunistically tries
// to advance the global epoch and reclaim the oldest bucket.
func (e *epoch) retire(n *node) {
	n.next.Store(nil)
	n.val = nil
	e.mu.Lock()
	idx := int(e.global % 3)
	e.retireLists[idx] = append(e.retireLists[idx], n)
	e.tryAdvanceLocked()
	e.mu.Unlock()
}

// tryAdvanceLocked advances the epoch and frees the bucket that is now two
// generations old, provided no pinned goroutine is still observing it.
// Must be called with e.mu held.
func (e *epoch) tryAdvanceLocked() {
	oldest := int((e.global + 1) % 3)
	if e.active[oldest] != 0 {
		return
	}
	for _, n := range e.retireLists[oldest] {
		e.pool.Put(n)
	}
	e.retireLists[oldest] = e.retireLists[oldest][:0]
	e.global++
}

func (e *epoch) newNode(val interface{}) *node {
	n := e.pool.Get().(*node)
	n.val = val
	n.next.Store(nil)
	return n
}
