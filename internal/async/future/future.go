// Package future provides a single assignment result holder for values produced
// by asynchronous tasks.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrAlreadyResolved = errors.New("future is already resolved")

type getTimeoutKey struct{}

type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future which is already resolved with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v)
	return f
}

// Failed returns a future which is already resolved with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Complete resolves the future with value v. Returns false when the future
// has been resolved before.
func (f *Future[T]) Complete(v T) bool {
	return f.resolve(v, nil)
}

// Fail resolves the future with an error. Returns false when the future
// has been resolved before.
func (f *Future[T]) Fail(err error) bool {
	if err == nil {
		err = errors.New("future failed with nil error")
	}
	var zero T
	return f.resolve(zero, err)
}

func (f *Future[T]) resolve(v T, err error) bool {
	ok := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
		ok = true
	})
	return ok
}

// Done returns a channel which is closed when the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has been resolved, without blocking.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// WithGetTimeout bounds how long Get waits for a value when called with the
// returned context.
func WithGetTimeout(parent context.Context, timeout time.Duration) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, getTimeoutKey{}, timeout)
}

// Get blocks until the future is resolved or ctx is done. Timeout set with
// WithGetTimeout is honored.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, ok := ctx.Value(getTimeoutKey{}).(time.Duration); ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future is resolved.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Then returns a future resolved with fn applied to the value of f. When f
// fails, the error is passed on and fn is not called.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	res := New[U]()
	go func() {
		v, err := f.Wait()
		if err != nil {
			res.Fail(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			res.Fail(err)
			return
		}
		res.Complete(u)
	}()
	return res
}
