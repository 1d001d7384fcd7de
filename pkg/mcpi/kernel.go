package mcpi

import (
	"context"

	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/rng"
)

// KernelFunction is the name RunJob is registered under for remote
// invocation.
const KernelFunction = "unit_circle_samples"

// kernelBlock is the number of draws between cancellation checks.
const kernelBlock = 1 << 20

// CountInCircle draws n points uniformly from [-1, 1) x [-1, 1) and returns
// how many fall in the closed unit disk. The stream must not be shared with
// any concurrent caller.
func CountInCircle(n uint64, s *rng.Stream) uint64 {
	var inside uint64
	for i := uint64(0); i < n; i++ {
		x := s.Uniform()
		y := s.Uniform()
		if x*x+y*y <= 1 {
			inside++
		}
	}
	return inside
}

// RunJob runs the kernel for one job on a stream built from the job's own
// seed. Zero-sample jobs return 0 without drawing. The context is checked
// between fixed-size blocks of draws, which does not alter the sequence.
func RunJob(ctx context.Context, j Job) (uint64, error) {
	if !j.RNG.Valid() {
		return 0, invalidf("job %d: unknown random generator %v", j.ID, j.RNG)
	}
	if j.SampleCount == 0 {
		return 0, nil
	}
	s := rng.New(j.RNG, j.Seed)
	var inside uint64
	for left := j.SampleCount; left > 0; {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n := min(left, kernelBlock)
		inside += CountInCircle(n, s)
		left -= n
	}
	return inside, nil
}

// RegisterKernel exposes RunJob on reg under KernelFunction.
func RegisterKernel(reg *remote.Registry) {
	reg.Register(KernelFunction, func(ctx context.Context, args remote.Args) (uint64, error) {
		kind, err := rng.ParseKind(args.RNG)
		if err != nil {
			return 0, invalidf("%v", err)
		}
		return RunJob(ctx, Job{SampleCount: args.SampleCount, Seed: args.Seed, RNG: kind})
	})
}
