package mcpi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/rng"
)

const (
	nSamples = 5_000_000
	seed     = 8888
	piTol    = 1e-2
)

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func localExecutor() *remote.LocalExecutor {
	reg := remote.NewRegistry()
	RegisterKernel(reg)
	return remote.NewLocalExecutor(reg)
}

func TestEstimatePiConverges(t *testing.T) {
	strategies := []Strategy{
		Sequential{},
		ThreadPool{},
		ThreadPool{JobCount: 16, Workers: 4},
		ParallelLoop{},
		ParallelLoop{Threads: 3, JobCount: 8},
		Remote{Executor: localExecutor(), JobCount: 8},
	}
	for _, s := range strategies {
		t.Run(s.Name(), func(t *testing.T) {
			pi, err := EstimatePi(context.Background(), nSamples, seed, s, WithLogger(quietLogger()))
			require.NoError(t, err)
			assert.InDelta(t, math.Pi, pi, piTol)
			assert.Greater(t, pi, 0.0)
			assert.LessOrEqual(t, pi, 4.0)
		})
	}
}

var allKinds = []rng.Kind{rng.MT19937_64, rng.MT19937, rng.PCG, rng.MRG32k3a}

func TestEstimatePiConvergesForEveryGenerator(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			pi, err := EstimatePi(context.Background(), nSamples, seed, ParallelLoop{JobCount: 8},
				WithRNG(kind), WithLogger(quietLogger()))
			require.NoError(t, err)
			assert.InDelta(t, math.Pi, pi, piTol)

			serial, err := EstimateSerial(nSamples, seed, kind)
			require.NoError(t, err)
			assert.InDelta(t, math.Pi, serial, piTol)
		})
	}
}

func TestEstimatePiDeterministic(t *testing.T) {
	for _, kind := range allKinds {
		s := ThreadPool{JobCount: 8, Workers: 4}
		a, err := EstimatePi(context.Background(), 200_000, seed, s, WithRNG(kind), WithLogger(quietLogger()))
		require.NoError(t, err)
		b, err := EstimatePi(context.Background(), 200_000, seed, s, WithRNG(kind), WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(a), math.Float64bits(b), kind.String())
	}
}

func TestSequentialMatchesSingleJobThreadPool(t *testing.T) {
	seq, err := EstimatePi(context.Background(), 300_001, seed, Sequential{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	pool, err := EstimatePi(context.Background(), 300_001, seed, ThreadPool{JobCount: 1}, WithLogger(quietLogger()))
	require.NoError(t, err)
	serial, err := EstimateSerial(300_001, seed, rng.Default)
	require.NoError(t, err)

	assert.Equal(t, seq, pool)
	assert.Equal(t, seq, serial)
}

func TestStrategiesAgreeForSameJobCount(t *testing.T) {
	const jobs = 8
	want, err := Estimate(context.Background(), 400_000, seed, ThreadPool{JobCount: jobs, Workers: 2}, WithLogger(quietLogger()))
	require.NoError(t, err)

	for _, s := range []Strategy{
		ThreadPool{JobCount: jobs, Workers: 7},
		ParallelLoop{Threads: 3, JobCount: jobs},
		ParallelLoop{Threads: 20, JobCount: jobs},
		Remote{Executor: localExecutor(), JobCount: jobs},
	} {
		got, err := Estimate(context.Background(), 400_000, seed, s, WithLogger(quietLogger()))
		require.NoError(t, err, s.Name())
		assert.Equal(t, want.Results, got.Results, s.Name())
		assert.Equal(t, want.Estimate, got.Estimate, s.Name())
	}
}

func TestEstimateReport(t *testing.T) {
	report, err := Estimate(context.Background(), 100_000, seed, ParallelLoop{Threads: 2, JobCount: 3},
		WithRNG(rng.PCG), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "parallel-loop", report.Strategy)
	assert.Equal(t, rng.PCG, report.RNG)
	assert.Equal(t, uint64(100_000), report.Samples)
	require.Len(t, report.Results, 3)

	var inside, samples uint64
	for i, r := range report.Results {
		assert.Equal(t, i, r.JobID)
		inside += r.Inside
		samples += r.Samples
	}
	assert.Equal(t, report.Inside, inside)
	assert.Equal(t, report.Samples, samples)
	assert.Equal(t, 4*(float64(inside)/float64(samples)), report.Estimate)
	assert.InDelta(t, math.Abs(report.Estimate-math.Pi), report.AbsError(), 1e-15)
}

func TestEstimateMoreJobsThanSamples(t *testing.T) {
	report, err := Estimate(context.Background(), 20, seed, ThreadPool{JobCount: 32, Workers: 4}, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, report.Results, 32)
	for _, r := range report.Results[20:] {
		assert.Zero(t, r.Samples)
		assert.Zero(t, r.Inside)
	}
	assert.Greater(t, report.Estimate, 0.0)
	assert.LessOrEqual(t, report.Estimate, 4.0)
}

func TestEstimateInvalidArguments(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	counting := WithJobFunc(func(ctx context.Context, j Job) (uint64, error) {
		calls.Add(1)
		return RunJob(ctx, j)
	})

	cases := map[string]struct {
		samples uint64
		s       Strategy
	}{
		"zero samples":     {0, ThreadPool{}},
		"nil strategy":     {10, nil},
		"negative workers": {10, ThreadPool{Workers: -1}},
		"negative threads": {10, ParallelLoop{Threads: -2}},
		"negative jobs":    {10, ParallelLoop{JobCount: -2}},
		"no executor":      {10, Remote{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := EstimatePi(ctx, tc.samples, seed, tc.s, counting, WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.NotErrorIs(t, err, ErrExecution)
		})
	}
	assert.Zero(t, calls.Load(), "no job may run when preconditions fail")
}

func TestEstimateUnknownGenerator(t *testing.T) {
	bad := rng.Kind(42)
	for _, s := range []Strategy{Sequential{}, ThreadPool{JobCount: 2}, Remote{Executor: localExecutor(), JobCount: 2}} {
		assert.NotPanics(t, func() {
			_, err := EstimatePi(context.Background(), 1000, seed, s, WithRNG(bad), WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrInvalidArgument, s.Name())
		})
	}
	assert.NotPanics(t, func() {
		_, err := EstimateSerial(1000, seed, bad)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
	assert.NotPanics(t, func() {
		_, err := RunJob(context.Background(), Job{SampleCount: 10, RNG: bad})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestEstimateAllMissIsRejected(t *testing.T) {
	allMiss := WithJobFunc(func(context.Context, Job) (uint64, error) { return 0, nil })
	_, err := EstimatePi(context.Background(), 100, seed, Sequential{}, allMiss, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEstimatePropagatesJobFailure(t *testing.T) {
	boom := errors.New("simulated job failure")
	failing := WithJobFunc(func(ctx context.Context, j Job) (uint64, error) {
		if j.ID == 3 {
			return 0, boom
		}
		return RunJob(ctx, j)
	})

	for _, s := range []Strategy{
		ThreadPool{JobCount: 8, Workers: 2},
		ParallelLoop{Threads: 2, JobCount: 8},
	} {
		t.Run(s.Name(), func(t *testing.T) {
			pi, err := EstimatePi(context.Background(), 80_000, seed, s, failing, WithLogger(quietLogger()))
			require.Error(t, err)
			assert.Zero(t, pi)
			assert.ErrorIs(t, err, ErrExecution)
			assert.ErrorIs(t, err, boom)

			var jobErr *JobError
			require.ErrorAs(t, err, &jobErr)
			assert.Equal(t, 3, jobErr.JobID)
		})
	}

	t.Run("sequential", func(t *testing.T) {
		_, err := EstimatePi(context.Background(), 1000, seed, Sequential{},
			WithJobFunc(func(context.Context, Job) (uint64, error) { return 0, boom }),
			WithLogger(quietLogger()))
		assert.ErrorIs(t, err, ErrExecution)
	})
}

func TestEstimatePropagatesPanic(t *testing.T) {
	panicky := WithJobFunc(func(ctx context.Context, j Job) (uint64, error) {
		if j.ID == 1 {
			panic("kernel blew up")
		}
		return RunJob(ctx, j)
	})
	for _, s := range []Strategy{ThreadPool{JobCount: 4}, ParallelLoop{Threads: 2, JobCount: 4}} {
		_, err := EstimatePi(context.Background(), 4000, seed, s, panicky, WithLogger(quietLogger()))
		assert.ErrorIs(t, err, ErrExecution, s.Name())
		assert.ErrorContains(t, err, "kernel blew up", s.Name())
	}
}

func TestRemoteFailurePropagates(t *testing.T) {
	reg := remote.NewRegistry()
	var calls atomic.Int32
	reg.Register(KernelFunction, func(ctx context.Context, args remote.Args) (uint64, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("worker crashed")
		}
		return args.SampleCount / 2, nil
	})

	_, err := EstimatePi(context.Background(), 10_000, seed,
		Remote{Executor: remote.NewLocalExecutor(reg), JobCount: 4}, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecution)
	assert.NotErrorIs(t, err, ErrResourceExhausted)
}

func TestRemoteUnavailableIsResourceExhaustion(t *testing.T) {
	exec := remote.NewHTTPExecutor(nil, time.Second)
	_, err := EstimatePi(context.Background(), 10_000, seed, Remote{Executor: exec, JobCount: 2}, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.ErrorIs(t, err, ErrExecution)
}

func kernelNode(t *testing.T) *httptest.Server {
	reg := remote.NewRegistry()
	RegisterKernel(reg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remote.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reg.Handle(r.Context(), req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func badGatewayNode(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteHTTPNodeFailureFailsEstimate(t *testing.T) {
	healthy, broken := kernelNode(t), badGatewayNode(t)

	t.Run("mixed nodes", func(t *testing.T) {
		exec := remote.NewHTTPExecutor([]string{healthy.URL, broken.URL}, 5*time.Second)
		pi, err := EstimatePi(context.Background(), 1_000_000, seed,
			Remote{Executor: exec, JobCount: 4}, WithLogger(quietLogger()))
		require.Error(t, err)
		assert.Zero(t, pi)
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorIs(t, err, remote.ErrRemote)
		assert.NotErrorIs(t, err, ErrResourceExhausted)

		var jobErr *JobError
		require.ErrorAs(t, err, &jobErr)
		assert.Equal(t, 1, jobErr.JobID)
	})

	t.Run("all nodes failing", func(t *testing.T) {
		exec := remote.NewHTTPExecutor([]string{broken.URL}, 5*time.Second)
		_, err := EstimatePi(context.Background(), 1_000_000, seed,
			Remote{Executor: exec, JobCount: 4}, WithLogger(quietLogger()))
		assert.ErrorIs(t, err, ErrExecution)
		assert.NotErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("healthy node", func(t *testing.T) {
		exec := remote.NewHTTPExecutor([]string{healthy.URL}, 5*time.Second)
		pi, err := EstimatePi(context.Background(), 1_000_000, seed,
			Remote{Executor: exec, JobCount: 4}, WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.InDelta(t, math.Pi, pi, piTol)
	})
}

func TestEstimateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EstimatePi(ctx, 10_000, seed, ThreadPool{JobCount: 4}, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorContains(t, err, context.Canceled.Error())
}

func TestEstimateSerial(t *testing.T) {
	pi, err := EstimateSerial(nSamples, seed, rng.MT19937)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, pi, piTol)

	_, err = EstimateSerial(0, seed, rng.Default)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestJobErrorMatching(t *testing.T) {
	cause := errors.New("cause")
	err := error(&JobError{JobID: 2, Err: cause})
	assert.ErrorIs(t, err, ErrExecution)
	assert.NotErrorIs(t, err, ErrResourceExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "job 2")

	err = &JobError{JobID: 0, Err: cause, Exhausted: true}
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.ErrorIs(t, ErrResourceExhausted, ErrExecution)
}
