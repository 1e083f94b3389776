package tasks

import (
	"time"

	"github.com/catzilla-go/catzilla/queue"
)

const autoScaleTick = time.Second

// autoScaleLoop periodically recomputes queue pressure and spawns or
// retires one worker at a time, respecting the configured cooldown so a
// burst doesn't thrash the pool size.
func (e *Engine) autoScaleLoop() {
	ticker := time.NewTicker(autoScaleTick)
	defer ticker.Stop()
	for !e.stopping.Load() {
		<-ticker.C
		if e.stopping.Load() {
			return
		}
		e.maybeScale()
	}
}

// statsLoop periodically publishes each band's queue depth to the
// registered metrics sink, independent of whether auto-scaling is enabled.
func (e *Engine) statsLoop() {
	ticker := time.NewTicker(autoScaleTick)
	defer ticker.Stop()
	for !e.stopping.Load() {
		<-ticker.C
		if e.stopping.Load() {
			return
		}
		for p := queue.Priority(0); p < queue.NumPriorities; p++ {
			e.cfg.Stats.SetQueueDepth(p.String(), e.q.BandCounters(p).Size)
		}
	}
}

func (e *Engine) pressure() float64 {
	var used, capTotal int64
	for p := queue.Priority(0); p < queue.NumPriorities; p++ {
		c := e.q.BandCounters(p)
		used += c.Size
		capTotal += e.cfg.QueueSize
	}
	if capTotal == 0 {
		return 0
	}
	return float64(used) / float64(capTotal)
}

func (e *Engine) maybeScale() {
	e.mu.Lock()
	if time.Since(e.lastScale) < e.cfg.Cooldown {
		e.mu.Unlock()
		return
	}
	p := e.pressure()
	scaleUp := p > e.cfg.ScaleUpThreshold && e.workerCount < e.cfg.MaxWorkers
	scaleDown := !scaleUp && p < e.cfg.ScaleDownThreshold && e.workerCount > e.cfg.MinWorkers
	if scaleUp || scaleDown {
		e.lastScale = time.Now()
	}
	if scaleDown {
		e.stopRequests++
	}
	e.mu.Unlock()

	if scaleUp {
		e.spawnWorker()
	}
}
