// Package async contains the helpers for running work on a bounded set of goroutines.
package async

import (
	"context"
	"fmt"
	"runtime"

	"github.com/blocknode-org/blocknode/internal/async/future"
	"github.com/blocknode-org/blocknode/internal/logger"
	"golang.org/x/sync/semaphore"
)

var log = logger.CreateForPackage()

/*
Pool limits the number of tasks running concurrently. Submitting never blocks
the caller, tasks wait for a free slot in their own goroutine.
*/
type Pool struct {
	name string
	size int64
	sem  *semaphore.Weighted
}

// NewPool creates pool which runs at most size tasks at once. When size is
// not positive GOMAXPROCS is used.
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{name: name, size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Size() int {
	return int(p.size)
}

/*
Submit schedules task to be executed by the pool p. Result of the task is
delivered by the returned future. Panic inside the task fails the future.
When ctx is cancelled before the task gets a slot the future fails with the
context error.
*/
func Submit[T any](ctx context.Context, p *Pool, task func() (T, error)) *future.Future[T] {
	res := future.New[T]()
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			res.Fail(fmt.Errorf("%s: waiting for worker: %w", p.name, err))
			return
		}
		defer p.sem.Release(1)
		v, err := runTask(p.name, task)
		if err != nil {
			res.Fail(err)
			return
		}
		res.Complete(v)
	}()
	return res
}

func runTask[T any](name string, task func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("{%s} task panicked: %v", name, r)
			err = fmt.Errorf("%s: task panicked: %v", name, r)
		}
	}()
	return task()
}
