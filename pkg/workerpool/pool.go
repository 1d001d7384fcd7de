// Package workerpool provides a generic WorkerPoolExecutor
// that runs a fallible function concurrently over a slice of inputs.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoWorkers is returned by Run when the pool was configured with a
// non-positive worker count.
var ErrNoWorkers = errors.New("worker pool has no workers")

type PoolOptions struct {
	NumWorkers int
}

type PoolOptionFunc func(*PoolOptions)

func defaultOpts() PoolOptions {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return PoolOptions{
		NumWorkers: n,
	}
}

// WithWorkers allows customization of the number of concurrent workers.
func WithWorkers(num int) PoolOptionFunc {
	return func(opts *PoolOptions) {
		opts.NumWorkers = num
	}
}

// WorkerPoolExecutor manages a pool of goroutines to execute tasks.
// T is the input type, R is the output type.
type WorkerPoolExecutor[T any, R any] struct {
	PoolOptions
}

// New creates a new WorkerPoolExecutor with optional configuration.
func New[T any, R any](opts ...PoolOptionFunc) *WorkerPoolExecutor[T, R] {
	o := defaultOpts()
	for _, fn := range opts {
		fn(&o)
	}
	return &WorkerPoolExecutor[T, R]{PoolOptions: o}
}

// TaskError reports the failure of a single input.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Run dispatches each input through fn concurrently, using up to NumWorkers
// goroutines, and returns the outputs in the same order as inputs.
//
// The first failing task cancels the context handed to the remaining tasks
// and Run returns that failure as a *TaskError; no partial output is
// returned. A panic inside fn is reported as a failure of its task. If ctx is
// cancelled before every task finished, Run returns ctx.Err().
func (w *WorkerPoolExecutor[T, R]) Run(ctx context.Context, inputs []T, fn func(ctx context.Context, t T) (R, error)) ([]R, error) {
	if w.NumWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if len(inputs) == 0 {
		return []R{}, nil
	}

	// Internal types to carry index for ordering
	type task struct {
		idx   int
		input T
	}
	type result struct {
		idx    int
		output R
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := w.NumWorkers
	if numWorkers > len(inputs) {
		numWorkers = len(inputs)
	}

	tasks := make(chan task)
	results := make(chan result, len(inputs))

	call := func(t task) (out R, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("panic: %v", p)
			}
		}()
		return fn(ctx, t.input)
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return

				case t, ok := <-tasks:
					if !ok {
						return
					}

					// Check again before heavy work
					select {
					case <-ctx.Done():
						return
					default:
					}

					out, err := call(t)

					// results is buffered for every input, so this never blocks
					results <- result{idx: t.idx, output: out, err: err}
				}
			}
		}()
	}

	// Feed tasks and close channels appropriately
	go func() {
		defer close(tasks)
		for i, input := range inputs {
			select {
			case <-ctx.Done():
				return
			case tasks <- task{idx: i, input: input}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outputs := make([]R, len(inputs))
	collected := 0

	// Keep going until we've seen every expected result
	for collected < len(inputs) {
		r, ok := <-results
		if !ok {
			// Workers quit early, which only happens after cancellation.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("worker pool stopped before all tasks completed")
		}
		if r.err != nil {
			cancel()
			return nil, &TaskError{Index: r.idx, Err: r.err}
		}
		// Store by index so order is preserved
		outputs[r.idx] = r.output
		collected++
	}
	return outputs, nil
}
