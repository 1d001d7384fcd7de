package mcpi

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/sysinfo"
	"github.com/qcserestipy/gompi/pkg/workerpool"
)

// JobFunc computes the inside count of one job.
type JobFunc func(ctx context.Context, j Job) (uint64, error)

// Strategy executes jobs and returns their results in job order.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// Jobs is the number of jobs the workload should be split into, or 0 to
	// use the available parallelism.
	Jobs() int
	// Execute runs fn once per job. Any job failure fails the whole call
	// with an error matching ErrExecution.
	Execute(ctx context.Context, jobs []Job, fn JobFunc) ([]Result, error)
}

func defaultCount(n int) int {
	if n > 0 {
		return n
	}
	return sysinfo.AvailableParallelism()
}

// callJob runs fn for j, turning a panic into an error.
func callJob(ctx context.Context, fn JobFunc, j Job) (inside uint64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, j)
}

func jobFailure(j Job, err error) error {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return &JobError{JobID: j.ID, Err: err, Exhausted: errors.Is(err, remote.ErrUnavailable)}
}

func checkCounts(name string, counts ...int) error {
	for _, c := range counts {
		if c < 0 {
			return invalidf("%s: negative job or worker count %d", name, c)
		}
	}
	return nil
}

// Sequential runs a single job on the calling goroutine.
type Sequential struct{}

func (Sequential) Name() string { return "sequential" }

func (Sequential) Jobs() int { return 1 }

func (Sequential) Execute(ctx context.Context, jobs []Job, fn JobFunc) ([]Result, error) {
	results := make([]Result, len(jobs))
	for i, j := range jobs {
		inside, err := callJob(ctx, fn, j)
		if err != nil {
			return nil, jobFailure(j, err)
		}
		results[i] = Result{JobID: j.ID, Inside: inside, Samples: j.SampleCount}
	}
	return results, nil
}

// ThreadPool launches one task per job on a bounded goroutine pool. Workers
// defaults to the available parallelism and JobCount to Workers.
type ThreadPool struct {
	JobCount int
	Workers  int
}

func (t ThreadPool) Name() string { return "threadpool" }

func (t ThreadPool) Jobs() int {
	if t.JobCount > 0 {
		return t.JobCount
	}
	return t.Workers
}

func (t ThreadPool) Validate() error { return checkCounts(t.Name(), t.JobCount, t.Workers) }

func (t ThreadPool) Execute(ctx context.Context, jobs []Job, fn JobFunc) ([]Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	pool := workerpool.New[Job, uint64](workerpool.WithWorkers(defaultCount(t.Workers)))
	counts, err := pool.Run(ctx, jobs, func(ctx context.Context, j Job) (uint64, error) {
		return fn(ctx, j)
	})
	if err != nil {
		var taskErr *workerpool.TaskError
		if errors.As(err, &taskErr) {
			return nil, jobFailure(jobs[taskErr.Index], taskErr.Err)
		}
		if errors.Is(err, workerpool.ErrNoWorkers) {
			return nil, errors.Wrap(ErrResourceExhausted, err.Error())
		}
		return nil, errors.Wrap(ErrExecution, err.Error())
	}
	results := make([]Result, len(jobs))
	for i, j := range jobs {
		results[i] = Result{JobID: j.ID, Inside: counts[i], Samples: j.SampleCount}
	}
	return results, nil
}

// ParallelLoop distributes jobs over exactly Threads goroutines, each owning
// a contiguous block of job indices. Threads defaults to the available
// parallelism and JobCount to Threads; the two are independent.
type ParallelLoop struct {
	Threads  int
	JobCount int
}

func (p ParallelLoop) Name() string { return "parallel-loop" }

func (p ParallelLoop) Jobs() int {
	if p.JobCount > 0 {
		return p.JobCount
	}
	return p.Threads
}

func (p ParallelLoop) Validate() error { return checkCounts(p.Name(), p.Threads, p.JobCount) }

func (p ParallelLoop) Execute(ctx context.Context, jobs []Job, fn JobFunc) ([]Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	threads := defaultCount(p.Threads)
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		lo, hi := staticBlock(len(jobs), threads, w)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				j := jobs[i]
				inside, err := callJob(gctx, fn, j)
				if err != nil {
					return jobFailure(j, err)
				}
				results[i] = Result{JobID: j.ID, Inside: inside, Samples: j.SampleCount}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// staticBlock returns the half-open index range worker w of n handles when
// splitting total items with the balanced-remainder policy.
func staticBlock(total, n, w int) (lo, hi int) {
	base, rem := total/n, total%n
	lo = w*base + min(w, rem)
	hi = lo + base
	if w < rem {
		hi++
	}
	return lo, hi
}

// Remote submits each job to an external executor as an invocation of
// KernelFunction and waits for every future. JobCount defaults to the
// available parallelism. The JobFunc passed to Execute is not used; the
// executor decides what runs.
type Remote struct {
	Executor remote.Executor
	JobCount int
}

func (r Remote) Name() string { return "remote" }

func (r Remote) Jobs() int { return r.JobCount }

func (r Remote) Validate() error {
	if r.Executor == nil {
		return invalidf("remote: no executor configured")
	}
	return checkCounts(r.Name(), r.JobCount)
}

func (r Remote) Execute(ctx context.Context, jobs []Job, _ JobFunc) ([]Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	futures := make([]*remote.Future, len(jobs))
	for i, j := range jobs {
		futures[i] = r.Executor.Submit(ctx, KernelFunction, remote.Args{
			SampleCount: j.SampleCount,
			Seed:        j.Seed,
			RNG:         j.RNG.String(),
		})
	}

	results := make([]Result, len(jobs))
	for i, j := range jobs {
		inside, err := futures[i].Await(ctx)
		if err != nil {
			return nil, jobFailure(j, err)
		}
		if inside > j.SampleCount {
			return nil, jobFailure(j, errors.Errorf("remote returned %d inside for %d samples", inside, j.SampleCount))
		}
		results[i] = Result{JobID: j.ID, Inside: inside, Samples: j.SampleCount}
	}
	return results, nil
}
