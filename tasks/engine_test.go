package tasks_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catzilla-go/catzilla/queue"
	"github.com/catzilla-go/catzilla/tasks"
)

func newTestEngine() *tasks.Engine {
	e := tasks.NewEngine(tasks.Config{
		InitialWorkers:    2,
		MinWorkers:        1,
		MaxWorkers:        4,
		QueueSize:         100,
		EnableAutoScaling: false,
	})
	e.Start()
	return e
}

func TestSubmitRunsSuccessfully(t *testing.T) {
	e := newTestEngine()
	defer e.Stop(true)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotResult []byte
	id := e.Submit(func(ctx context.Context, payload []byte) ([]byte, error) {
		return append([]byte("echo:"), payload...), nil
	}, []byte("hi"), queue.Normal, 0, 0, tasks.WithSuccess(func(result []byte, traceID string) {
		gotResult = result
		wg.Done()
	}))
	if id == 0 {
		t.Fatal("expected non-zero task id")
	}
	waitOrFail(t, &wg, time.Second)
	if string(gotResult) != "echo:hi" {
		t.Fatalf("expected echo:hi, got %q", gotResult)
	}
}

// TestRetrySchedule mirrors the "Task retry" scenario: a function that
// fails on the first two attempts and succeeds on the third, with
// max_retries=3, factor=2, base=10ms - observed retry delays >=10ms then
// >=20ms, final state completed, attempts 3.
func TestRetrySchedule(t *testing.T) {
	e := newTestEngine()
	defer e.Stop(true)

	var attempts int32
	var retryTimes []time.Time
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)

	start := time.Now()
	e.Submit(func(ctx context.Context, payload []byte) ([]byte, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errors.New("not yet")
		}
		return []byte("ok"), nil
	}, nil, queue.Normal, 0, 3,
		tasks.WithBackoff(10*time.Millisecond, 2),
		tasks.WithRetry(func(attempt int, traceID string) {
			mu.Lock()
			retryTimes = append(retryTimes, time.Now())
			mu.Unlock()
		}),
		tasks.WithSuccess(func(result []byte, traceID string) { wg.Done() }),
		tasks.WithFailure(func(code int, msg, traceID string) { wg.Done() }),
	)

	waitOrFail(t, &wg, 2*time.Second)
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(retryTimes) != 2 {
		t.Fatalf("expected 2 retries, got %d", len(retryTimes))
	}
	if retryTimes[0].Sub(start) < 10*time.Millisecond {
		t.Errorf("first retry fired too early: %v", retryTimes[0].Sub(start))
	}
}

func TestQueueSaturationOverflow(t *testing.T) {
	e := tasks.NewEngine(tasks.Config{
		InitialWorkers: 0,
		MinWorkers:     1,
		MaxWorkers:     1,
		QueueSize:      4,
	})
	// Don't Start(): no workers drain the queue, so submissions pile up
	// and the 5th through 8th overflow, matching the "flood 8 from a
	// single producer, exactly 4 succeed" scenario.
	succeeded := 0
	noop := func(ctx context.Context, payload []byte) ([]byte, error) { return nil, nil }
	for i := 0; i < 8; i++ {
		if e.Submit(noop, nil, queue.Normal, time.Hour, 0) != 0 {
			succeeded++
		}
	}
	if succeeded != 4 {
		t.Fatalf("expected exactly 4 successful submissions, got %d", succeeded)
	}
	if e.Len() != 4 {
		t.Fatalf("expected 4 queued tasks, got %d", e.Len())
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for task completion")
	}
}
