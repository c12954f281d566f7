package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type noopJob struct{}

func (n noopJob) Run(ctx context.Context) error { return nil }

func TestShardExecutor_SubmitAndStop(t *testing.T) {
	t.Parallel()
	exec := NewShardExecutor(Config{Logger: zerolog.Nop()})
	defer exec.Stop()

	if err := exec.Submit(context.Background(), "user-1", noopJob{}); err != nil {
		t.Fatalf("submit error: %v", err)
	}
}

func TestShardExecutor_QueueFull(t *testing.T) {
	t.Parallel()
	cfg := Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond, Logger: zerolog.Nop()}
	exec := NewShardExecutor(cfg)
	defer exec.Stop()

	blockCtx, cancel := context.WithCancel(context.Background())
	var started int32
	_ = exec.Submit(context.Background(), "same", JobFunc(func(ctx context.Context) error {
		atomic.StoreInt32(&started, 1)
		<-blockCtx.Done()
		return nil
	}))

	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}

	_ = exec.Submit(context.Background(), "same", noopJob{})
	err := exec.Submit(context.Background(), "same", noopJob{})
	if err == nil {
		t.Fatal("expected queue full error")
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	cancel()
}

// FIFO ordering for a single key.
func TestShardExecutor_FIFOOrdering(t *testing.T) {
	p := NewShardExecutor(Config{Shards: 4, QueueSize: 10, Logger: zerolog.Nop()})
	defer p.Stop()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(5)
	for i := 0; i < 5; i++ {
		v := i
		if err := p.Submit(context.Background(), "user-1", JobFunc(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
			wg.Done()
			return nil
		})); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for jobs")
	}

	for i, v := range order {
		if i != v {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestShardExecutor_Retry(t *testing.T) {
	cfg := Config{Shards: 1, QueueSize: 10, MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond, Logger: zerolog.Nop()}
	ex := NewShardExecutor(cfg)
	defer ex.Stop()

	var attempts int32
	job := JobFunc(func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return context.DeadlineExceeded // arbitrary error
		}
		return nil
	})

	if err := ex.Submit(context.Background(), "user-1", job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestShardExecutor_ErrorHandlerOnExhaustion(t *testing.T) {
	var handled atomic.Value
	cfg := Config{
		Shards:       1,
		QueueSize:    10,
		MaxAttempts:  2,
		BaseBackoff:  time.Millisecond,
		ErrorHandler: func(err error) { handled.Store(err) },
		Logger:       zerolog.Nop(),
	}
	ex := NewShardExecutor(cfg)
	defer ex.Stop()

	boom := errors.New("always fails")
	_ = ex.Submit(context.Background(), "user-1", JobFunc(func(context.Context) error { return boom }))

	deadline := time.Now().Add(time.Second)
	for handled.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got, _ := handled.Load().(error); !errors.Is(got, boom) {
		t.Fatalf("expected terminal error %v, got %v", boom, got)
	}
}

func TestShardExecutor_SubmitAfterStop(t *testing.T) {
	ex := NewShardExecutor(Config{Logger: zerolog.Nop()})
	ex.Stop()

	if err := ex.Submit(context.Background(), "user-1", noopJob{}); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}

func TestShardExecutor_SkipsCancelledJobs(t *testing.T) {
	ex := NewShardExecutor(Config{Shards: 1, QueueSize: 10, Logger: zerolog.Nop()})
	defer ex.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	_ = ex.Submit(ctx, "user-1", JobFunc(func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}))

	if err := ex.Barrier(context.Background(), "user-1"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("cancelled job should not run")
	}
}

func TestShardExecutor_Barrier(t *testing.T) {
	ex := NewShardExecutor(Config{Shards: 2, QueueSize: 10, Logger: zerolog.Nop()})
	defer ex.Stop()

	var ran int32
	_ = ex.Submit(context.Background(), "user-1", JobFunc(func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
		return nil
	}))

	if err := ex.Barrier(context.Background(), "user-1"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("barrier returned before earlier job finished")
	}
}
