package mcpi

import "github.com/qcserestipy/gompi/pkg/rng"

// Job is one unit of sampling work.
type Job struct {
	ID          int      `json:"id"`
	SampleCount uint64   `json:"sample_count"`
	Seed        uint64   `json:"seed"`
	RNG         rng.Kind `json:"rng"`
}

// Result is the outcome of one job.
type Result struct {
	JobID   int    `json:"job_id"`
	Inside  uint64 `json:"inside"`
	Samples uint64 `json:"samples"`
}

// SampleCounts splits n samples over nJobs jobs as evenly as possible: the
// first n mod nJobs jobs receive one extra sample.
func SampleCounts(n uint64, nJobs int) ([]uint64, error) {
	if n == 0 {
		return nil, invalidf("sample count must be positive")
	}
	if nJobs <= 0 {
		return nil, invalidf("job count must be positive, got %d", nJobs)
	}
	base := n / uint64(nJobs)
	rem := n % uint64(nJobs)
	counts := make([]uint64, nJobs)
	for i := range counts {
		counts[i] = base
		if uint64(i) < rem {
			counts[i]++
		}
	}
	return counts, nil
}

// GenerateSeeds draws nJobs seeds, in job order, from a master stream of the
// given kind seeded with seed.
func GenerateSeeds(nJobs int, seed uint64, kind rng.Kind) ([]uint64, error) {
	if nJobs <= 0 {
		return nil, invalidf("job count must be positive, got %d", nJobs)
	}
	if !kind.Valid() {
		return nil, invalidf("unknown random generator %v", kind)
	}
	master := rng.New(kind, seed)
	seeds := make([]uint64, nJobs)
	for i := range seeds {
		seeds[i] = master.Next()
	}
	return seeds, nil
}

// Partition builds the job descriptors for an estimation run. The result is
// a deterministic function of (n, seed, nJobs, kind).
func Partition(n, seed uint64, nJobs int, kind rng.Kind) ([]Job, error) {
	counts, err := SampleCounts(n, nJobs)
	if err != nil {
		return nil, err
	}
	seeds, err := GenerateSeeds(nJobs, seed, kind)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, nJobs)
	for i := range jobs {
		jobs[i] = Job{ID: i, SampleCount: counts[i], Seed: seeds[i], RNG: kind}
	}
	return jobs, nil
}
