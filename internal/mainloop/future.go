package mainloop

import (
	"context"
	"sync"
)

// Future is the read side of a Promise. It is safe to share and to wait on
// from any goroutine.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
}

// Promise is the write side. Only the first Resolve takes effect.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise creates a connected promise/future pair.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return &Promise[T]{f: f}, f
}

// Resolved returns a future that is already ready with v.
func Resolved[T any](v T) *Future[T] {
	p, f := NewPromise[T]()
	p.Resolve(v)
	return f
}

// Resolve fulfils the future. It reports whether this call did so.
func (p *Promise[T]) Resolve(v T) bool {
	resolved := false
	p.f.once.Do(func() {
		p.f.val = v
		close(p.f.done)
		resolved = true
	})
	return resolved
}

// Future returns the read side.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future is resolved.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get returns the value without blocking. ok is false while pending.
func (f *Future[T]) Get() (v T, ok bool) {
	if !f.Ready() {
		return v, false
	}
	return f.val, true
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then runs fn with the value on loop once the future resolves. If loop is
// nil or already closed, fn runs on a background goroutine instead so the
// continuation is never lost. fn then no longer runs on the loop, so it must
// not touch state the loop owns without checking for shutdown first.
func (f *Future[T]) Then(loop *Loop, fn func(T)) {
	go func() {
		<-f.done
		v := f.val
		if loop == nil || !loop.Post(func() { fn(v) }) {
			fn(v)
		}
	}()
}
