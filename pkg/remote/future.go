package remote

import (
	"context"

	"github.com/pkg/errors"
)

// Future is a handle to the eventual result of a submitted invocation.
type Future struct {
	done chan struct{}
	val  uint64
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn in a new goroutine and returns a Future for its outcome. A panic
// in fn resolves the future with an error.
func Go(fn func() (uint64, error)) *Future {
	f := newFuture()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				f.resolve(0, errors.Errorf("panic: %v", p))
			}
		}()
		f.resolve(fn())
	}()
	return f
}

// Failed returns an already resolved future holding err.
func Failed(err error) *Future {
	f := newFuture()
	f.resolve(0, err)
	return f
}

func (f *Future) resolve(val uint64, err error) {
	select {
	case <-f.done:
		return
	default:
	}
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx is done.
func (f *Future) Await(ctx context.Context) (uint64, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
