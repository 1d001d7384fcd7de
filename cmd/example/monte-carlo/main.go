// Copyright Project GoHPC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"math"
	"time"

	"github.com/qcserestipy/gompi/pkg/mcpi"
	"github.com/qcserestipy/gompi/pkg/rng"
	"github.com/qcserestipy/gompi/pkg/sysinfo"
	"github.com/sirupsen/logrus"
)

func init() {
	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = time.RFC3339
	logrus.SetLevel(logrus.DebugLevel)
	logrus.SetFormatter(formatter)
}

func main() {
	logrus.Info("Starting Monte Carlo π approximation")
	numbPtr := flag.Uint64("n", 1_000_000_000, "Number of Trials")
	seedPtr := flag.Uint64("seed", 8888, "Master seed")
	jobsPtr := flag.Int("jobs", 0, "Number of jobs (0: one per worker)")
	flag.Parse()
	nTests := *numbPtr
	logrus.Infof("Number of Trials: %d", nTests)

	numWorkers := sysinfo.AvailableParallelism()
	logrus.Infof("System: %d CPU cores available", numWorkers)

	// Compare every local strategy on the same workload
	strategies := []mcpi.Strategy{
		mcpi.ThreadPool{JobCount: *jobsPtr, Workers: numWorkers},
		mcpi.ParallelLoop{Threads: numWorkers, JobCount: *jobsPtr},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, s := range strategies {
		logrus.Infof("Starting computation with %s...", s.Name())
		report, err := mcpi.Estimate(ctx, nTests, *seedPtr, s, mcpi.WithRNG(rng.MT19937_64))
		if err != nil {
			logrus.Fatalf("Estimation exited with error: %v", err)
		}

		logrus.WithFields(logrus.Fields{
			"strategy":         report.Strategy,
			"jobs":             len(report.Results),
			"pi_approximation": report.Estimate,
			"error":            math.Abs(report.Estimate - math.Pi),
			"duration":         report.Duration,
			"points_per_sec":   float64(nTests) / report.Duration.Seconds(),
		}).Info("Computation completed")

		logrus.Infof("π ≈ %0.8f (error: %0.8f, computed in %s)",
			report.Estimate, report.AbsError(), report.Duration)
	}
}
