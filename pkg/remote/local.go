package remote

import "context"

// LocalExecutor runs registered functions in-process, one goroutine per
// submission. It stands in for a remote cluster in tests and single-machine
// runs.
type LocalExecutor struct {
	Registry *Registry
}

// NewLocalExecutor returns an executor backed by reg.
func NewLocalExecutor(reg *Registry) *LocalExecutor {
	return &LocalExecutor{Registry: reg}
}

// Submit implements Executor.
func (e *LocalExecutor) Submit(ctx context.Context, function string, args Args) *Future {
	if e.Registry == nil {
		return Failed(ErrUnavailable)
	}
	return Go(func() (uint64, error) {
		return e.Registry.Invoke(ctx, Request{Function: function, Args: args})
	})
}
