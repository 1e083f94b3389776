// Package queue implements the lock-free MPMC queue: an unbounded
// Michael-Scott queue per priority band, four bands total, with soft
// capacity checks and the counters the task engine and its callers need
// (enqueued, dequeued, contention, overflow).
package queue

import (
	"github.com/catzilla-go/catzilla/cmn/debug"
	"github.com/catzilla-go/catzilla/sys"
)

// Priority is one of the four independent bands; lower numeric value
// drains first.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
	NumPriorities
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// assumedCacheLine is the cache line size node's padding is tuned for.
// init() asserts this against sys.CacheLineSize() in debug builds, so a
// platform with a different detected line size fails loudly instead of
// silently thrashing cache lines under contention.
const assumedCacheLine = 64

func init() {
	debug.Assertf(sys.CacheLineSize() == assumedCacheLine,
		"queue: node padding assumes a %d-byte cache line, detected %d",
		assumedCacheLine, sys.CacheLineSize())
}

type node struct {
	next sys.Pointer[node]
	val  interface{}
	// 24 bytes of padding: a node is two words plus an interface header
	// (24 bytes on amd64); padding it out towards assumedCacheLine keeps
	// adjacent freelist nodes from bouncing between cores on unrelated
	// CAS traffic.
	_pad [24]byte
}

// msQueue is one Michael-Scott unbounded queue with a soft capacity limit.
type msQueue struct {
	head, tail sys.Pointer[node]
	size       sys.Int64
	maxSize    int64 // 0 = unbounded

	enqueuedCnt, dequeuedCnt, contentionCnt, overflowCnt sys.Int64

	ep *epoch
}

func newMSQueue(maxSize int64, ep *epoch) *msQueue {
	q := &msQueue{maxSize: maxSize, ep: ep}
	sentinel := &node{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// enqueue links val at the tail, CAS'ing the tail pointer forward; if the
// observed tail's next is already non-null another producer raced ahead,
// so this goroutine helps advance the tail and retries.
func (q *msQueue) enqueue(val interface{}) bool {
	if q.maxSize > 0 && q.size.Load() >= q.maxSize {
		q.overflowCnt.Add(1)
		return false
	}
	idx := q.ep.pin()
	defer q.ep.unpin(idx)

	n := q.ep.newNode(val)
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue // tail changed mid-read, retry
		}
		if next == nil {
			if tail.next.CAS(nil, n) {
				q.tail.CAS(tail, n)
				q.size.Add(1)
				q.enqueuedCnt.Add(1)
				return true
			}
			q.contentionCnt.Add(1)
		} else {
			q.tail.CAS(tail, next) // help the lagging tail along
			q.contentionCnt.Add(1)
		}
	}
}

// dequeue observes head; if head == tail and next is null the queue is
// empty; if head == tail but next is non-null the tail is lagging and this
// goroutine helps advance it; otherwise it CASes head forward and returns
// the value that was linked at the old head's next.
func (q *msQueue) dequeue() (interface{}, bool) {
	idx := q.ep.pin()
	defer q.ep.unpin(idx)

	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return nil, false
			}
			q.tail.CAS(tail, next)
			q.contentionCnt.Add(1)
			continue
		}
		val := next.val
		if q.head.CAS(head, next) {
			q.size.Add(-1)
			q.dequeuedCnt.Add(1)
			q.ep.retire(head)
			return val, true
		}
		q.contentionCnt.Add(1)
	}
}

func (q *msQueue) Len() int64 { return q.size.Load() }

// Counters is a snapshot of one band's operation counters.
type Counters struct {
	Enqueued, Dequeued, Contention, Overflow int64
	Size                                     int64
}

func (q *msQueue) counters() Counters {
	return Counters{
		Enqueued:   q.enqueuedCnt.Load(),
		Dequeued:   q.dequeuedCnt.Load(),
		Contention: q.contentionCnt.Load(),
		Overflow:   q.overflowCnt.Load(),
		Size:       q.size.Load(),
	}
}

// PriorityQueue is four independent msQueues, one per Priority band,
// sharing one epoch reclaimer. Workers drain bands in priority order -
// see package tasks.
type PriorityQueue struct {
	bands [NumPriorities]*msQueue
	ep    *epoch
}

// NewPriorityQueue builds a PriorityQueue; maxPerBand is the soft capacity
// each band enforces (0 = unbounded).
func NewPriorityQueue(maxPerBand int64) *PriorityQueue {
	ep := newEpoch()
	pq := &PriorityQueue{ep: ep}
	for i := range pq.bands {
		pq.bands[i] = newMSQueue(maxPerBand, ep)
	}
	return pq
}

// Enqueue pushes val onto the named band. It returns false if the band's
// soft capacity is already reached (an overflow, counted separately from a
// contended-but-successful push).
func (pq *PriorityQueue) Enqueue(p Priority, val interface{}) bool {
	return pq.bands[p].enqueue(val)
}

// Dequeue drains bands from Critical to Low, returning the first
// available item and the band it came from.
func (pq *PriorityQueue) Dequeue() (val interface{}, band Priority, ok bool) {
	for p := Priority(0); p < NumPriorities; p++ {
		if v, got := pq.bands[p].dequeue(); got {
			return v, p, true
		}
	}
	return nil, 0, false
}

// Len returns the total number of items across all bands.
func (pq *PriorityQueue) Len() int64 {
	var total int64
	for _, b := range pq.bands {
		total += b.Len()
	}
	return total
}

// BandCounters returns the operation counters for one band, used by the
// auto-scaler to compute queue pressure and by /metrics exporters.
func (pq *PriorityQueue) BandCounters(p Priority) Counters { return pq.bands[p].counters() }
