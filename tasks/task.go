// Package tasks implements the worker pool and background task engine:
// four priority bands drained by an auto-scaling set of workers, delayed
// and retryable tasks, and cooperative cancellation of pending work.
package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/queue"
)

// State is the task lifecycle: pending -> runnable -> running ->
// {completed | failed -> (pending if retrying else failed-terminal)}.
// Cancellation only ever applies while a task is still pending.
type State int32

const (
	Pending State = iota
	Runnable
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fn is the unit of work a task runs. It must return promptly relative to
// the task's timeout; the engine enforces the timeout via ctx.
type Fn func(ctx context.Context, payload []byte) (result []byte, err error)

// SuccessFunc, FailureFunc and RetryFunc are the three continuations a
// submitter may attach - exactly one of SuccessFunc/FailureFunc fires per
// terminal task, and RetryFunc fires once per retry attempt in between, as
// that attempt starts running.
type SuccessFunc func(result []byte, traceID string)
type FailureFunc func(errCode int, message string, traceID string)
type RetryFunc func(attempt int, traceID string)

// Stats is a task's execution record: when it started/ended and how many
// retries it actually took.
type Stats struct {
	StartNano, EndNano int64
	RetriesTaken       int
}

// Task is one unit of submitted work. Retries reuse the same ID - a new id
// is only minted on Submit, never on re-enqueue after failure.
type Task struct {
	ID       cmn.TaskID
	TraceID  string
	Priority queue.Priority

	ScheduledAt time.Time
	Timeout     time.Duration

	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64

	Payload []byte

	fn        Fn
	onSuccess SuccessFunc
	onFailure FailureFunc
	onRetry   RetryFunc

	state     int32 // atomic State
	cancelled int32 // atomic bool
	stats     Stats
}

func (t *Task) State() State      { return State(atomic.LoadInt32(&t.state)) }
func (t *Task) setState(s State)  { atomic.StoreInt32(&t.state, int32(s)) }
func (t *Task) Cancelled() bool   { return atomic.LoadInt32(&t.cancelled) != 0 }

// Cancel marks the task cancelled. It only has effect while the task is
// still pending - a task already picked up by a worker runs to completion
// unless it cooperatively checks ctx/Cancelled itself.
func (t *Task) Cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
}

func (t *Task) retryDelay() time.Duration {
	factor := t.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	mult := 1.0
	for i := 0; i < t.stats.RetriesTaken; i++ {
		mult *= factor
	}
	return time.Duration(float64(t.BackoffBase) * mult)
}
