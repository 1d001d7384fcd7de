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

// Command mcpi estimates pi by Monte Carlo sampling and runs the worker
// processes remote estimations are distributed to.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qcserestipy/gompi/pkg/config"
	"github.com/qcserestipy/gompi/pkg/mcpi"
	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/serve"
	"github.com/qcserestipy/gompi/pkg/sysinfo"
)

func init() {
	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = time.RFC3339
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(formatter)
}

const usage = `Usage: mcpi <command> [flags]

Commands:
  estimate     estimate pi with Monte Carlo sampling
  quasi        estimate pi on a deterministic midpoint grid
  serve        run an HTTP compute node
  nats-worker  serve invocations from a NATS subject
  sysinfo      print CPU information and default parallelism

Run "mcpi <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "estimate":
		err = runEstimate(ctx, args)
	case "quasi":
		err = runQuasi(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "nats-worker":
		err = runNATSWorker(ctx, args)
	case "sysinfo":
		err = runSysinfo(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// loadConfig parses fs with the flags bound to a config loaded from the
// -config file. Flags given on the command line win over the file.
func loadConfig(fs *flag.FlagSet, args []string, bind func(*config.Config)) (*config.Config, error) {
	path := ""
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(a, "-config=") || strings.HasPrefix(a, "--config="):
			path = a[strings.Index(a, "=")+1:]
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	fs.String("config", path, "YAML configuration file")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "log format: text or json")
	bind(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Apply(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runEstimate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args, func(c *config.Config) {
		fs.Uint64Var(&c.Samples, "n", c.Samples, "Number of Trials")
		fs.Uint64Var(&c.Seed, "seed", c.Seed, "master seed")
		fs.StringVar(&c.RNG, "rng", c.RNG, "random generator: mt19937_64, mt19937, pcg or mrg32k3a")
		fs.StringVar(&c.Strategy.Name, "strategy", c.Strategy.Name,
			"execution strategy: sequential, threadpool, parallel-loop, http or nats")
		fs.IntVar(&c.Strategy.Jobs, "jobs", c.Strategy.Jobs, "number of jobs (0: available parallelism)")
		fs.IntVar(&c.Strategy.Workers, "workers", c.Strategy.Workers, "number of local workers (0: available parallelism)")
		fs.Func("endpoints", "comma separated compute node URLs (default "+strings.Join(c.Remote.Endpoints, ",")+")",
			func(s string) error {
				c.Remote.Endpoints = splitList(s)
				return nil
			})
		fs.StringVar(&c.Remote.NATSURL, "nats-url", c.Remote.NATSURL, "NATS server URL")
		fs.StringVar(&c.Remote.Subject, "subject", c.Remote.Subject, "NATS subject")
		fs.DurationVar(&c.Remote.Timeout, "timeout", c.Remote.Timeout, "remote invocation timeout")
	})
	if err != nil {
		return err
	}

	strategy, cleanup, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logrus.Info("Starting Monte Carlo π approximation")
	logrus.WithFields(sysinfo.Describe().Fields()).Debug("Host")

	report, err := mcpi.Estimate(ctx, cfg.Samples, cfg.Seed, strategy, mcpi.WithRNG(cfg.Kind()))
	if err != nil {
		return err
	}
	logrus.Infof("π ≈ %0.8f (error: %0.8f, computed in %s, %0.0f points/s)",
		report.Estimate, report.AbsError(), report.Duration,
		float64(report.Samples)/report.Duration.Seconds())
	return nil
}

// buildStrategy turns the strategy section into a mcpi.Strategy. The
// returned cleanup releases connections the strategy holds.
func buildStrategy(cfg *config.Config) (mcpi.Strategy, func(), error) {
	noop := func() {}
	sc := cfg.Strategy
	switch sc.Name {
	case config.StrategySequential:
		return mcpi.Sequential{}, noop, nil
	case config.StrategyThreadPool:
		return mcpi.ThreadPool{JobCount: sc.Jobs, Workers: sc.Workers}, noop, nil
	case config.StrategyParallelLoop:
		return mcpi.ParallelLoop{Threads: sc.Workers, JobCount: sc.Jobs}, noop, nil
	case config.StrategyHTTP:
		exec := remote.NewHTTPExecutor(cfg.Remote.Endpoints, cfg.Remote.Timeout)
		return mcpi.Remote{Executor: exec, JobCount: sc.Jobs}, noop, nil
	case config.StrategyNATS:
		nc, err := nats.Connect(cfg.Remote.NATSURL, nats.Name("mcpi estimate"))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "connect to NATS at %s", cfg.Remote.NATSURL)
		}
		exec := remote.NewNATSExecutor(nc, cfg.Remote.Subject, cfg.Remote.Timeout)
		return mcpi.Remote{Executor: exec, JobCount: sc.Jobs}, nc.Close, nil
	}
	return nil, nil, errors.Errorf("unknown strategy %q", sc.Name)
}

func runQuasi(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quasi", flag.ContinueOnError)
	intervals := fs.Uint64("intervals", 5000, "number of grid intervals per axis")
	cfg, err := loadConfig(fs, args, func(c *config.Config) {
		fs.IntVar(&c.Strategy.Workers, "workers", c.Strategy.Workers, "number of threads (0: available parallelism)")
		fs.IntVar(&c.Strategy.Jobs, "jobs", c.Strategy.Jobs, "number of row blocks (0: one per thread)")
	})
	if err != nil {
		return err
	}

	start := time.Now()
	pi, err := mcpi.QuasiEstimate(ctx, *intervals,
		mcpi.ParallelLoop{Threads: cfg.Strategy.Workers, JobCount: cfg.Strategy.Jobs})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"n_points": *intervals * *intervals,
		"duration": time.Since(start),
	}).Infof("π ≈ %0.8f", pi)
	return nil
}

func newRegistry() *remote.Registry {
	reg := remote.NewRegistry()
	mcpi.RegisterKernel(reg)
	return reg
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args, func(c *config.Config) {
		fs.IntVar(&c.Server.Port, "port", c.Server.Port, "port to listen on")
		fs.IntVar(&c.Server.Workers, "workers", c.Server.Workers, "concurrent invocations (0: available parallelism)")
		fs.IntVar(&c.Server.TaskHistory, "task-history", c.Server.TaskHistory, "invocations kept for GET /tasks")
	})
	if err != nil {
		return err
	}

	srv := serve.New(newRegistry(),
		serve.WithWorkers(cfg.Server.Workers),
		serve.WithTaskHistory(cfg.Server.TaskHistory),
	)
	return serve.Launch(ctx, srv, cfg.Server.Port)
}

func runNATSWorker(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("nats-worker", flag.ContinueOnError)
	cfg, err := loadConfig(fs, args, func(c *config.Config) {
		fs.StringVar(&c.Remote.NATSURL, "nats-url", c.Remote.NATSURL, "NATS server URL")
		fs.StringVar(&c.Remote.Subject, "subject", c.Remote.Subject, "NATS subject")
		fs.StringVar(&c.Remote.Queue, "queue", c.Remote.Queue, "NATS queue group")
	})
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.Remote.NATSURL, nats.Name("mcpi worker"))
	if err != nil {
		return errors.Wrapf(err, "connect to NATS at %s", cfg.Remote.NATSURL)
	}
	defer nc.Close()

	sub, err := remote.ServeNATS(ctx, nc, cfg.Remote.Subject, cfg.Remote.Queue, newRegistry())
	if err != nil {
		return err
	}
	<-ctx.Done()
	logrus.Info("Draining NATS subscription")
	return sub.Drain()
}

func runSysinfo(args []string) error {
	fs := flag.NewFlagSet("sysinfo", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON instead of logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	info := sysinfo.Describe()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	logrus.WithFields(info.Fields()).Info("System")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
