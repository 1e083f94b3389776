package memsys

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the process-wide statistics record the allocator contract
// requires: allocation/deallocation counts, peak bytes, per-arena bytes in
// use, and cache hit/miss counters for higher layers. The hot cache
// (package cache) does not bump these; it keeps its own hit/miss counts.
type Stats struct {
	allocs, frees  int64
	peakBytes      int64
	oomCount       int64
	cacheHits      int64
	cacheMisses    int64
	perArenaBytes  [numArenas]int64
}

// Snapshot is an immutable point-in-time read of Stats.
type Snapshot struct {
	AllocCount    int64
	DeallocCount  int64
	PeakBytes     int64
	OOMCount      int64
	CacheHits     int64
	CacheMisses   int64
	PerArenaBytes map[string]int64
}

func (s *Stats) recordAlloc(id ArenaID, n int64) {
	atomic.AddInt64(&s.allocs, 1)
	cur := atomic.AddInt64(&s.perArenaBytes[id], n)
	for {
		peak := atomic.LoadInt64(&s.peakBytes)
		if cur <= peak || atomic.CompareAndSwapInt64(&s.peakBytes, peak, cur) {
			break
		}
	}
	arenaBytesGauge.WithLabelValues(id.String()).Set(float64(cur))
	allocTotal.WithLabelValues(id.String()).Inc()
}

func (s *Stats) recordFree(id ArenaID, n int64) {
	atomic.AddInt64(&s.frees, 1)
	cur := atomic.AddInt64(&s.perArenaBytes[id], -n)
	arenaBytesGauge.WithLabelValues(id.String()).Set(float64(cur))
	freeTotal.WithLabelValues(id.String()).Inc()
}

func (s *Stats) recordOOM(id ArenaID) {
	atomic.AddInt64(&s.oomCount, 1)
	oomTotal.WithLabelValues(id.String()).Inc()
}

// RecordCacheHit/RecordCacheMiss bump the cache hit/miss counters kept for
// higher layers. No package in this module calls them.
func (s *Stats) RecordCacheHit()  { atomic.AddInt64(&s.cacheHits, 1) }
func (s *Stats) RecordCacheMiss() { atomic.AddInt64(&s.cacheMisses, 1) }

func (s *Stats) snapshot() Snapshot {
	per := make(map[string]int64, numArenas)
	for i := ArenaID(0); i < numArenas; i++ {
		per[i.String()] = atomic.LoadInt64(&s.perArenaBytes[i])
	}
	return Snapshot{
		AllocCount:    atomic.LoadInt64(&s.allocs),
		DeallocCount:  atomic.LoadInt64(&s.frees),
		PeakBytes:     atomic.LoadInt64(&s.peakBytes),
		OOMCount:      atomic.LoadInt64(&s.oomCount),
		CacheHits:     atomic.LoadInt64(&s.cacheHits),
		CacheMisses:   atomic.LoadInt64(&s.cacheMisses),
		PerArenaBytes: per,
	}
}

var (
	arenaBytesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "catzilla",
		Subsystem: "memsys",
		Name:      "arena_bytes_in_use",
		Help:      "Bytes currently checked out of a named arena.",
	}, []string{"arena"})
	allocTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla",
		Subsystem: "memsys",
		Name:      "alloc_total",
		Help:      "Allocations served per arena.",
	}, []string{"arena"})
	freeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla",
		Subsystem: "memsys",
		Name:      "free_total",
		Help:      "Frees observed per arena.",
	}, []string{"arena"})
	oomTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla",
		Subsystem: "memsys",
		Name:      "oom_total",
		Help:      "Allocation failures (OOM) per arena.",
	}, []string{"arena"})
)

func init() {
	prometheus.MustRegister(arenaBytesGauge, allocTotal, freeTotal, oomTotal)
}
