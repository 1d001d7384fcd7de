// Package mcpi estimates pi by Monte Carlo sampling.
//
// A run partitions the total sample count into jobs, derives one seed per job
// from a master seed, executes the jobs through a Strategy and gathers the
// per-job counts:
//
//	pi ~= 4 * (sum of inside counts) / (sum of sample counts)
//
// Every job builds its own random stream from its seed, so jobs share no
// mutable state and a run is a deterministic function of the total sample
// count, the master seed, the job count and the generator.
package mcpi

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qcserestipy/gompi/pkg/rng"
	"github.com/qcserestipy/gompi/pkg/sysinfo"
)

type options struct {
	kind    rng.Kind
	logger  logrus.FieldLogger
	jobFunc JobFunc
}

// Option configures an estimation run.
type Option func(*options)

// WithRNG selects the generator used for seeds and sampling.
func WithRNG(kind rng.Kind) Option {
	return func(o *options) { o.kind = kind }
}

// WithLogger sets the logger for run and per-job events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithJobFunc replaces RunJob as the per-job computation for local
// strategies.
func WithJobFunc(fn JobFunc) Option {
	return func(o *options) { o.jobFunc = fn }
}

func defaultOptions() options {
	return options{
		kind:    rng.Default,
		logger:  logrus.StandardLogger(),
		jobFunc: RunJob,
	}
}

// Report describes a finished estimation run.
type Report struct {
	Estimate float64       `json:"estimate"`
	Samples  uint64        `json:"samples"`
	Inside   uint64        `json:"inside"`
	Seed     uint64        `json:"seed"`
	RNG      rng.Kind      `json:"rng"`
	Strategy string        `json:"strategy"`
	Results  []Result      `json:"results"`
	Duration time.Duration `json:"duration"`
}

// AbsError is the distance between the estimate and math.Pi.
func (r Report) AbsError() float64 { return math.Abs(r.Estimate - math.Pi) }

// EstimatePi estimates pi from samples draws using strategy s.
//
// It fails with ErrInvalidArgument before dispatching any work if samples is
// zero or the strategy is misconfigured, and with ErrExecution if any job
// fails. On success the estimate is finite and in (0, 4].
func EstimatePi(ctx context.Context, samples, seed uint64, s Strategy, opts ...Option) (float64, error) {
	report, err := Estimate(ctx, samples, seed, s, opts...)
	if err != nil {
		return 0, err
	}
	return report.Estimate, nil
}

// Estimate is EstimatePi returning the full Report.
func Estimate(ctx context.Context, samples, seed uint64, s Strategy, opts ...Option) (Report, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if s == nil {
		return Report{}, invalidf("no strategy given")
	}
	if samples == 0 {
		return Report{}, invalidf("sample count must be positive")
	}
	if !o.kind.Valid() {
		return Report{}, invalidf("unknown random generator %v", o.kind)
	}
	if v, ok := s.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return Report{}, err
		}
	}
	nJobs := s.Jobs()
	if nJobs < 0 {
		return Report{}, invalidf("%s: negative job count %d", s.Name(), nJobs)
	}
	if nJobs == 0 {
		nJobs = sysinfo.AvailableParallelism()
	}

	jobs, err := Partition(samples, seed, nJobs, o.kind)
	if err != nil {
		return Report{}, err
	}

	log := o.logger.WithFields(logrus.Fields{
		"strategy": s.Name(),
		"samples":  samples,
		"seed":     seed,
		"jobs":     nJobs,
		"rng":      o.kind.String(),
	})
	log.WithFields(logrus.Fields{
		"samples_per_job": samples / uint64(nJobs),
		"remainder":       samples % uint64(nJobs),
	}).Debug("Work distribution prepared")

	jobFunc := o.jobFunc
	if jobFunc == nil {
		jobFunc = RunJob
	}
	traced := func(ctx context.Context, j Job) (uint64, error) {
		start := time.Now()
		inside, err := jobFunc(ctx, j)
		if err == nil {
			log.WithFields(logrus.Fields{
				"job":              j.ID,
				"points_processed": j.SampleCount,
				"points_in_circle": inside,
				"duration":         time.Since(start),
			}).Debug("Job completed")
		}
		return inside, err
	}

	start := time.Now()
	results, err := s.Execute(ctx, jobs, traced)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, ErrExecution) && !errors.Is(err, ErrInvalidArgument) {
			err = errors.Wrapf(ErrExecution, "%s: %v", s.Name(), err)
		}
		log.WithError(err).Warn("Estimation failed")
		return Report{}, err
	}
	if err := checkResults(jobs, results); err != nil {
		return Report{}, err
	}

	pi, err := GatherResults(results)
	if err != nil {
		return Report{}, err
	}
	if err := checkEstimate(pi); err != nil {
		return Report{}, err
	}

	report := Report{
		Estimate: pi,
		Samples:  samples,
		Seed:     seed,
		RNG:      o.kind,
		Strategy: s.Name(),
		Results:  results,
		Duration: elapsed,
	}
	for _, r := range results {
		report.Inside += r.Inside
	}
	log.WithFields(logrus.Fields{
		"pi_approximation": pi,
		"error":            report.AbsError(),
		"duration":         elapsed,
	}).Info("Computation completed")
	return report, nil
}

// checkResults rejects a strategy answer that does not cover every job
// exactly once.
func checkResults(jobs []Job, results []Result) error {
	if len(results) != len(jobs) {
		return errors.Wrapf(ErrExecution, "got %d results for %d jobs", len(results), len(jobs))
	}
	for i, r := range results {
		j := jobs[i]
		if r.JobID != j.ID || r.Samples != j.SampleCount || r.Inside > r.Samples {
			return errors.Wrapf(ErrExecution, "result %d does not match job %d", i, j.ID)
		}
	}
	return nil
}

func checkEstimate(pi float64) error {
	switch {
	case pi == 0:
		return invalidf("too few samples: no draw fell inside the unit circle")
	case math.IsNaN(pi) || math.IsInf(pi, 0) || pi < 0 || pi > 4:
		return errors.Wrapf(ErrExecution, "estimate %v out of range", pi)
	}
	return nil
}

// EstimateSerial estimates pi on the calling goroutine without a strategy.
// It derives its single stream seed the same way Partition does for a
// one-job run, so it matches EstimatePi with Sequential or a one-job
// ThreadPool bit for bit.
func EstimateSerial(samples, seed uint64, kind rng.Kind) (float64, error) {
	if samples == 0 {
		return 0, invalidf("sample count must be positive")
	}
	if !kind.Valid() {
		return 0, invalidf("unknown random generator %v", kind)
	}
	seeds, err := GenerateSeeds(1, seed, kind)
	if err != nil {
		return 0, err
	}
	inside := CountInCircle(samples, rng.New(kind, seeds[0]))
	pi, err := Gather([]uint64{inside}, []uint64{samples})
	if err != nil {
		return 0, err
	}
	if err := checkEstimate(pi); err != nil {
		return 0, err
	}
	return pi, nil
}
