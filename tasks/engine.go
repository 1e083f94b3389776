package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/queue"
	"github.com/catzilla-go/catzilla/stats"
	"github.com/catzilla-go/catzilla/sys"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCooldown          = 30 * time.Second
	defaultScaleUpThreshold  = 0.80
	defaultScaleDownThreshold = 0.20
	idleWakeTimeout          = 100 * time.Millisecond
	minRequeueBackoff        = time.Millisecond
)

// Config configures one Engine instance; it is the tasks-related subset of
// cmn.Config plus the auto-scaler's cooldown and thresholds, which the
// enumerated configuration-option list leaves at their documented
// defaults rather than making them independently tunable.
type Config struct {
	InitialWorkers    int
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int64 // soft per-band capacity used for pressure math
	EnableAutoScaling bool
	Cooldown          time.Duration
	ScaleUpThreshold  float64
	ScaleDownThreshold float64
	Stats             *stats.Registry // optional, nil disables metrics recording
}

func (c *Config) fillDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.ScaleUpThreshold <= 0 {
		c.ScaleUpThreshold = defaultScaleUpThreshold
	}
	if c.ScaleDownThreshold <= 0 {
		c.ScaleDownThreshold = defaultScaleDownThreshold
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
}

// Engine is the worker pool + task engine: four priority bands, drained by
// an auto-scaling set of workers.
type Engine struct {
	cfg Config
	q   *queue.PriorityQueue

	mu           sync.Mutex
	workerCount  int
	stopRequests int
	lastScale    time.Time

	stopping sys.Bool
	wake     chan struct{}

	eg     *errgroup.Group
	egCtx  context.Context
	cancel context.CancelFunc

	drained chan struct{} // never created or closed; Stop(wait=true) polls the queue length instead
}

// NewEngine constructs an Engine. Call Start to launch the initial workers.
func NewEngine(cfg Config) *Engine {
	cfg.fillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	return &Engine{
		cfg:    cfg,
		q:      queue.NewPriorityQueue(cfg.QueueSize),
		wake:   make(chan struct{}, 1),
		eg:     eg,
		egCtx:  egCtx,
		cancel: cancel,
	}
}

// Start launches the initial worker goroutines and the auto-scaler tick.
func (e *Engine) Start() {
	n := e.cfg.InitialWorkers
	if n <= 0 {
		n = sys.DefaultWorkerCount()
	}
	for i := 0; i < n; i++ {
		e.spawnWorker()
	}
	if e.cfg.EnableAutoScaling {
		go e.autoScaleLoop()
	}
	if e.cfg.Stats != nil {
		go e.statsLoop()
	}
}

func (e *Engine) spawnWorker() {
	e.mu.Lock()
	e.workerCount++
	e.mu.Unlock()
	e.eg.Go(func() error {
		e.workerLoop()
		return nil
	})
}

// Submit enqueues fn for execution, returning the minted task id, or zero
// on enqueue failure (queue at soft capacity).
func (e *Engine) Submit(fn Fn, payload []byte, priority queue.Priority, delay time.Duration, maxRetries int, opts ...Option) cmn.TaskID {
	t := &Task{
		ID:            cmn.NewTaskID(),
		TraceID:       cmn.GenTraceID(),
		Priority:      priority,
		ScheduledAt:   time.Now().Add(delay),
		Timeout:       30 * time.Second,
		MaxRetries:    maxRetries,
		BackoffBase:   10 * time.Millisecond,
		BackoffFactor: 2,
		Payload:       payload,
		fn:            fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.setState(Pending)
	if !e.q.Enqueue(priority, t) {
		return 0
	}
	e.nudge()
	return t.ID
}

// Option customizes a submitted task beyond Submit's required arguments.
type Option func(*Task)

func WithTimeout(d time.Duration) Option        { return func(t *Task) { t.Timeout = d } }
func WithBackoff(base time.Duration, factor float64) Option {
	return func(t *Task) { t.BackoffBase = base; t.BackoffFactor = factor }
}
func WithSuccess(fn SuccessFunc) Option { return func(t *Task) { t.onSuccess = fn } }
func WithFailure(fn FailureFunc) Option { return func(t *Task) { t.onFailure = fn } }
func WithRetry(fn RetryFunc) Option     { return func(t *Task) { t.onRetry = fn } }

func (e *Engine) nudge() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) workerLoop() {
	for {
		if e.stopping.Load() {
			if v, _, ok := e.q.Dequeue(); ok {
				e.runOne(v.(*Task))
				continue
			}
			return
		}
		if e.shouldSelfStop() {
			return
		}
		v, _, ok := e.q.Dequeue()
		if !ok {
			e.idleWait()
			continue
		}
		e.runOne(v.(*Task))
	}
}

func (e *Engine) shouldSelfStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopRequests > 0 && e.workerCount > e.cfg.MinWorkers {
		e.stopRequests--
		e.workerCount--
		return true
	}
	return false
}

func (e *Engine) idleWait() {
	t := time.NewTimer(idleWakeTimeout)
	defer t.Stop()
	select {
	case <-e.wake:
	case <-t.C:
	}
}

func (e *Engine) runOne(t *Task) {
	if t.Cancelled() && t.State() == Pending {
		t.setState(Cancelled)
		return
	}
	if t.ScheduledAt.After(time.Now()) {
		// Simple delay: re-enqueue to its own band rather than running a
		// separate timer wheel. A tiny sleep keeps a single pending-future
		// task from spinning a worker hot.
		time.Sleep(minRequeueBackoff)
		e.q.Enqueue(t.Priority, t)
		return
	}
	t.setState(Runnable)
	t.setState(Running)
	t.stats.StartNano = sys.NowNano()
	if t.stats.RetriesTaken > 0 && t.onRetry != nil {
		t.onRetry(t.stats.RetriesTaken, t.TraceID)
	}

	ctx := e.egCtx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	result, err := t.fn(ctx, t.Payload)
	if cancel != nil {
		cancel()
	}
	t.stats.EndNano = sys.NowNano()

	if err == nil {
		t.setState(Completed)
		if e.cfg.Stats != nil {
			e.cfg.Stats.RecordTaskCompleted(t.Priority.String())
		}
		if t.onSuccess != nil {
			t.onSuccess(result, t.TraceID)
		}
		return
	}

	if t.stats.RetriesTaken < t.MaxRetries {
		delay := t.retryDelay()
		t.stats.RetriesTaken++
		t.ScheduledAt = time.Now().Add(delay)
		t.setState(Pending)
		if e.cfg.Stats != nil {
			e.cfg.Stats.RecordTaskRetried(t.Priority.String())
		}
		e.q.Enqueue(t.Priority, t)
		e.nudge()
		return
	}

	t.setState(Failed)
	if e.cfg.Stats != nil {
		e.cfg.Stats.RecordTaskFailed(t.Priority.String())
	}
	if t.onFailure != nil {
		t.onFailure(1, err.Error(), t.TraceID)
	}
}

// Stop requests shutdown. If wait is true, Stop blocks until every band is
// empty; otherwise it returns immediately and workers drain outstanding
// items before exiting on their own.
func (e *Engine) Stop(wait bool) {
	e.stopping.Store(true)
	if !wait {
		go func() {
			_ = e.eg.Wait()
			e.cancel()
		}()
		return
	}
	for e.q.Len() > 0 {
		time.Sleep(time.Millisecond)
	}
	e.cancel()
	_ = e.eg.Wait()
}

// Len returns the total number of tasks currently queued across all bands.
func (e *Engine) Len() int64 { return e.q.Len() }

// WorkerCount returns the current number of live worker goroutines.
func (e *Engine) WorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workerCount
}
