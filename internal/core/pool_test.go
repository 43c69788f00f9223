package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(2, 10, time.Second)
	defer pool.Close()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), Task{
			ID:  "t",
			Run: func() { defer wg.Done(); ran.Add(1) },
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5", got)
	}
}

func TestWorkerPool_LimitsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, 10, time.Second)
	defer pool.Close()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		_ = pool.Submit(context.Background(), Task{Run: func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}})
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestWorkerPool_QueueFullTimeout(t *testing.T) {
	pool := NewWorkerPool(1, 0, 50*time.Millisecond)
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(context.Background(), Task{Run: func() {
		close(started)
		<-block
	}}); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	<-started

	start := time.Now()
	err := pool.Submit(context.Background(), Task{Run: func() {}})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyTransfers) {
		t.Errorf("Submit() error = %v, want ErrTooManyTransfers", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("Submit() returned after %v, want it to wait ~50ms", elapsed)
	}

	close(block)
}

func TestWorkerPool_SubmitContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1, 0, 5*time.Second)
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	_ = pool.Submit(context.Background(), Task{Run: func() { close(started); <-block }})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pool.Submit(ctx, Task{Run: func() {}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
	close(block)
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1, 1, time.Second)
	defer pool.Close()

	recovered := make(chan any, 1)
	_ = pool.Submit(context.Background(), Task{
		Run:     func() { panic("boom") },
		OnPanic: func(v any) { recovered <- v },
	})

	select {
	case v := <-recovered:
		if v != "boom" {
			t.Errorf("recovered %v, want boom", v)
		}
	case <-time.After(time.Second):
		t.Fatal("OnPanic was not called")
	}

	// The worker survives the panic.
	done := make(chan struct{})
	_ = pool.Submit(context.Background(), Task{Run: func() { close(done) }})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestWorkerPool_CloseRejects(t *testing.T) {
	pool := NewWorkerPool(1, 1, time.Second)
	pool.Close()
	pool.Close()

	if err := pool.Submit(context.Background(), Task{Run: func() {}}); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrServiceClosed", err)
	}
	if !pool.Status().Closed {
		t.Error("Status().Closed = false, want true")
	}
}

func TestWorkerPool_CloseReleasesBlockedSubmit(t *testing.T) {
	pool := NewWorkerPool(1, 0, time.Minute)

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	if err := pool.Submit(context.Background(), Task{Run: func() {
		close(started)
		<-block
	}}); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	<-started

	submitErr := make(chan error, 1)
	go func() {
		submitErr <- pool.Submit(context.Background(), Task{Run: func() {}})
	}()

	deadline := time.Now().Add(time.Second)
	for pool.Status().Queued != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second Submit() never started waiting")
		}
		time.Sleep(time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() blocked behind a waiting Submit()")
	}

	select {
	case err := <-submitErr:
		if !errors.Is(err, ErrServiceClosed) {
			t.Errorf("blocked Submit() error = %v, want ErrServiceClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Submit() was not released by Close()")
	}

	if st := pool.Status(); st.Queued != 0 {
		t.Errorf("Status().Queued = %d, want 0", st.Queued)
	}
}

func TestWorkerPool_WaitForDrain(t *testing.T) {
	pool := NewWorkerPool(1, 1, time.Second)

	_ = pool.Submit(context.Background(), Task{Run: func() { time.Sleep(50 * time.Millisecond) }})
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
	if st := pool.Status(); st.Active != 0 || st.Queued != 0 {
		t.Errorf("Status() = %+v, want idle", st)
	}
}

func TestWorkerPool_WaitForDrainTimeout(t *testing.T) {
	pool := NewWorkerPool(1, 1, time.Second)
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)
	_ = pool.Submit(context.Background(), Task{Run: func() { <-block }})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() error = %v, want DeadlineExceeded", err)
	}
}

func TestWorkerPool_Defaults(t *testing.T) {
	pool := NewWorkerPool(0, -1, 0)
	defer pool.Close()

	st := pool.Status()
	if st.Workers != DefaultMaxConcurrentTransfers {
		t.Errorf("Workers = %d, want %d", st.Workers, DefaultMaxConcurrentTransfers)
	}
	if st.QueueSize != DefaultQueueSize {
		t.Errorf("QueueSize = %d, want %d", st.QueueSize, DefaultQueueSize)
	}
}
