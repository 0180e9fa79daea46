package mainloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := New()
	defer l.Close()

	var got []int
	for i := range 100 {
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("Expected 100 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Expected item %d at %d, got %d", i, i, v)
		}
	}
}

func TestLoop_PostFromManyGoroutines(t *testing.T) {
	l := New()
	defer l.Close()

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	_ = l.Call(context.Background(), func() {})

	if counter != 1000 {
		t.Errorf("Expected 1000, got %d", counter)
	}
}

func TestLoop_ClosedRejectsWork(t *testing.T) {
	l := New()
	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	l.Close()

	select {
	case <-ran:
	default:
		t.Fatal("Expected queued work to drain before Close returned")
	}
	if l.Post(func() {}) {
		t.Error("Expected Post on closed loop to fail")
	}
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestLoop_After(t *testing.T) {
	l := New()
	defer l.Close()

	fired := make(chan struct{})
	l.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for After")
	}

	stopped := make(chan struct{})
	timer := l.After(50*time.Millisecond, func() { close(stopped) })
	timer.Stop()
	select {
	case <-stopped:
		t.Fatal("Stopped timer still fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPromise_ResolveOnce(t *testing.T) {
	p, f := NewPromise[int]()
	if f.Ready() {
		t.Fatal("Expected pending future")
	}
	if _, ok := f.Get(); ok {
		t.Fatal("Expected Get to report pending")
	}

	if !p.Resolve(1) {
		t.Fatal("Expected first Resolve to win")
	}
	if p.Resolve(2) {
		t.Fatal("Expected second Resolve to be ignored")
	}

	v, err := f.Wait(context.Background())
	if err != nil || v != 1 {
		t.Errorf("Expected 1, got %d (%v)", v, err)
	}
}

func TestFuture_WaitContext(t *testing.T) {
	_, f := NewPromise[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestFuture_ThenRunsOnLoop(t *testing.T) {
	l := New()
	defer l.Close()

	// Track which goroutine touches owned state by only mutating it on the loop.
	owned := 0
	p, f := NewPromise[int]()
	result := make(chan int, 1)
	f.Then(l, func(v int) {
		owned += v
		result <- owned
	})

	go p.Resolve(5)

	select {
	case got := <-result:
		if got != 5 {
			t.Errorf("Expected 5, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for continuation")
	}
}

func TestFuture_ThenAfterLoopClosed(t *testing.T) {
	l := New()
	l.Close()

	result := make(chan int, 1)
	Resolved(7).Then(l, func(v int) { result <- v })

	select {
	case got := <-result:
		if got != 7 {
			t.Errorf("Expected 7, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Continuation lost after loop closed")
	}
}
