package playback

import (
	"context"
	"sync"
)

// Future is a result that settles exactly once. Later Resolve or Reject calls
// are ignored and report false.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		settled = true
		close(f.done)
	})
	return settled
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done. Abandoning a wait
// does not affect the future.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then returns a future that settles with fn applied to f's value, or with
// f's error.
func Then[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	out := NewFuture[U]()
	go func() {
		<-f.done
		if f.err != nil {
			out.Reject(f.err)
			return
		}
		out.Resolve(fn(f.value))
	}()
	return out
}
