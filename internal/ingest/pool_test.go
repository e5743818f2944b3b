package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2, 4, 10)
	defer p.Close()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.Submit(func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	if got := ran.Load(); got != 20 {
		t.Errorf("ran = %d, want 20", got)
	}
}

func TestPoolSaturation(t *testing.T) {
	p := NewPool(1, 1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the single worker.
	if err := p.Submit(func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	// Fill the queue.
	if err := p.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("Submit to queue: %v", err)
	}

	// Worker busy, queue full, no headroom.
	err := p.Submit(func(context.Context) {})
	if !errors.Is(err, ErrPoolSaturated) {
		t.Errorf("err = %v, want ErrPoolSaturated", err)
	}

	close(release)
}

func TestPoolGrowsBeyondCore(t *testing.T) {
	p := NewPool(1, 2, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if err := p.Submit(func(context.Context) { <-release }); err != nil {
		t.Fatalf("Submit to queue: %v", err)
	}

	// Queue full, but a transient worker may still be spawned.
	done := make(chan struct{})
	if err := p.Submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit beyond core: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transient worker never ran the job")
	}
	close(release)
}

func TestPoolClosedSubmit(t *testing.T) {
	p := NewPool(1, 1, 1)
	p.Close()

	if err := p.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	p := NewPool(1, 1, 10)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		if err := p.Submit(func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Close()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5 after Close", got)
	}
}
