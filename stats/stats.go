// Package stats is the cross-cutting metrics surface for the engine's own
// components - cache hit/miss, task queue depth and outcomes, upload
// throughput, scan results - kept deliberately separate from any one
// component's internals the way the teacher keeps stats.Trunner/Prunner
// separate from cluster.Target/Proxy. The teacher's own stats package
// (target_stats.go/proxy_stats.go) is grounded on a statsd-notifying
// tracker keyed by cluster-wide counter names (get.cold.n, reb.tx.n, ...)
// that depend on internal dfcpub types (statsTracker, statsRunner,
// statsd.Client) never present in this pack and on a cluster Proxy/Target
// split that doesn't exist in a single embeddable server core; rather
// than leave those two files as dangling references to types nobody
// retrieved, this package keeps the teacher's naming convention comment
// and counter/latency shape but is rebuilt on prometheus/client_golang,
// which the teacher already depends on (see memsys/stats.go) and which
// is the natural fit for a process any operator would scrape.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Naming convention (matching the teacher's stats package comment):
// "*.n" - counter, "*.ns"/"*.seconds" - latency, "*.bytes" - size,
// "*.bps" - throughput. Prometheus doesn't take '.'-joined names, so the
// convention here is expressed through each metric's Subsystem/Name
// instead.
type Registry struct {
	reg *prometheus.Registry

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheBytes   prometheus.Gauge
	cacheEvicts  prometheus.Counter

	taskCompleted *prometheus.CounterVec
	taskFailed    *prometheus.CounterVec
	taskRetried   *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec

	uploadBytes  prometheus.Counter
	uploadSpills prometheus.Counter

	scanFiles    prometheus.Counter
	scanThreats  prometheus.Counter
	scanErrors   prometheus.Counter
	scanDuration prometheus.Histogram
}

// NewRegistry builds an independent prometheus.Registry - independent so
// more than one Registry can coexist in a process (e.g. in tests) without
// the global-registry double-registration panic memsys/stats.go's
// package-level MustRegister would otherwise risk.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "cache", Name: "hits_total", Help: "Hot cache hits.",
	})
	r.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "cache", Name: "misses_total", Help: "Hot cache misses.",
	})
	r.cacheBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "catzilla", Subsystem: "cache", Name: "bytes_in_use", Help: "Bytes currently held by the hot cache.",
	})
	r.cacheEvicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "cache", Name: "evictions_total", Help: "LRU evictions performed.",
	})

	r.taskCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "tasks", Name: "completed_total", Help: "Tasks that ran to completion, by priority band.",
	}, []string{"priority"})
	r.taskFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "tasks", Name: "failed_total", Help: "Tasks that exhausted retries, by priority band.",
	}, []string{"priority"})
	r.taskRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "tasks", Name: "retried_total", Help: "Task retry attempts, by priority band.",
	}, []string{"priority"})
	r.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "catzilla", Subsystem: "tasks", Name: "queue_depth", Help: "Current queue depth, by priority band.",
	}, []string{"priority"})

	r.uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "upload", Name: "bytes_total", Help: "Bytes streamed through the multipart upload pipeline.",
	})
	r.uploadSpills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "upload", Name: "spills_total", Help: "Parts that spilled from memory to disk.",
	})

	r.scanFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "scan", Name: "files_total", Help: "Files submitted for virus scanning.",
	})
	r.scanThreats = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "scan", Name: "threats_total", Help: "Infected files detected.",
	})
	r.scanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catzilla", Subsystem: "scan", Name: "errors_total", Help: "Scan adapter errors (timeouts, daemon unreachable).",
	})
	r.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catzilla", Subsystem: "scan", Name: "duration_seconds", Help: "Per-file scan latency.",
		Buckets: prometheus.DefBuckets,
	})

	r.reg.MustRegister(
		r.cacheHits, r.cacheMisses, r.cacheBytes, r.cacheEvicts,
		r.taskCompleted, r.taskFailed, r.taskRetried, r.queueDepth,
		r.uploadBytes, r.uploadSpills,
		r.scanFiles, r.scanThreats, r.scanErrors, r.scanDuration,
	)
	return r
}

func (r *Registry) RecordCacheHit()         { r.cacheHits.Inc() }
func (r *Registry) RecordCacheMiss()        { r.cacheMisses.Inc() }
func (r *Registry) RecordCacheEviction()    { r.cacheEvicts.Inc() }
func (r *Registry) SetCacheBytes(n int64)   { r.cacheBytes.Set(float64(n)) }

func (r *Registry) RecordTaskCompleted(priority string) { r.taskCompleted.WithLabelValues(priority).Inc() }
func (r *Registry) RecordTaskFailed(priority string)    { r.taskFailed.WithLabelValues(priority).Inc() }
func (r *Registry) RecordTaskRetried(priority string)   { r.taskRetried.WithLabelValues(priority).Inc() }
func (r *Registry) SetQueueDepth(priority string, n int64) {
	r.queueDepth.WithLabelValues(priority).Set(float64(n))
}

func (r *Registry) RecordUploadBytes(n int64) { r.uploadBytes.Add(float64(n)) }
func (r *Registry) RecordUploadSpill()        { r.uploadSpills.Inc() }

func (r *Registry) RecordScan(infected, failed bool, dur time.Duration) {
	r.scanFiles.Inc()
	if infected {
		r.scanThreats.Inc()
	}
	if failed {
		r.scanErrors.Inc()
	}
	r.scanDuration.Observe(dur.Seconds())
}

// Handler exposes the registry in Prometheus text-exposition format, to be
// mounted at /metrics by whatever serves the engine's admin surface.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
