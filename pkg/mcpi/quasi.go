package mcpi

import (
	"context"
	"math"
)

// QuasiEstimate estimates pi from the deterministic intervals x intervals grid
// of cell midpoints over [-1, 1] x [-1, 1]. Grid rows are split into jobs with
// the same balanced-remainder policy as random sampling and run through s,
// which must be a local strategy.
func QuasiEstimate(ctx context.Context, intervals uint64, s Strategy) (float64, error) {
	if intervals == 0 {
		return 0, invalidf("interval count must be positive")
	}
	if intervals > math.MaxUint32 {
		return 0, invalidf("interval count %d overflows the grid size", intervals)
	}
	if s == nil {
		return 0, invalidf("no strategy given")
	}
	if _, ok := s.(Remote); ok {
		return 0, invalidf("quasi Monte Carlo runs on local strategies only")
	}
	if v, ok := s.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return 0, err
		}
	}

	nJobs := defaultCount(s.Jobs())
	rows, err := SampleCounts(intervals, nJobs)
	if err != nil {
		return 0, err
	}
	firstRow := make([]uint64, nJobs)
	jobs := make([]Job, nJobs)
	var next uint64
	for i := range jobs {
		firstRow[i] = next
		next += rows[i]
		jobs[i] = Job{ID: i, SampleCount: rows[i] * intervals}
	}

	results, err := s.Execute(ctx, jobs, func(ctx context.Context, j Job) (uint64, error) {
		lo := firstRow[j.ID]
		return countGridRows(ctx, intervals, lo, lo+j.SampleCount/intervals)
	})
	if err != nil {
		return 0, err
	}
	if err := checkResults(jobs, results); err != nil {
		return 0, err
	}
	return GatherResults(results)
}

// countGridRows counts the midpoints of rows [lo, hi) of an n x n grid that
// lie in the closed unit disk.
func countGridRows(ctx context.Context, n, lo, hi uint64) (uint64, error) {
	step := 2 / float64(n)
	var inside uint64
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		y := -1 + (float64(i)+0.5)*step
		yy := y * y
		for k := uint64(0); k < n; k++ {
			x := -1 + (float64(k)+0.5)*step
			if x*x+yy <= 1 {
				inside++
			}
		}
	}
	return inside, nil
}
