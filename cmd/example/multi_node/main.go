// Command multi_node starts several HTTP compute nodes in-process and
// estimates pi by distributing jobs over them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/qcserestipy/gompi/pkg/mcpi"
	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/serve"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logrus.SetLevel(logrus.InfoLevel)
}

func main() {
	logrus.Info("Starting Monte Carlo π approximation")

	totalPoints := flag.Uint64("n", 100_000_000, "Number of Trials")
	nServers := flag.Int("servers", 2, "Number of compute nodes")
	basePort := flag.Int("port", 3000, "Port of the first compute node")
	jobs := flag.Int("jobs", 64, "Number of jobs")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	endpoints := make([]string, *nServers)
	for i := 0; i < *nServers; i++ {
		reg := remote.NewRegistry()
		mcpi.RegisterKernel(reg)
		srv := serve.New(reg)

		port := *basePort + i
		endpoints[i] = fmt.Sprintf("http://localhost:%d", port)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serve.Launch(ctx, srv, port); err != nil {
				logrus.Errorf("node on port %d: %v", port, err)
			}
		}()
	}

	// Wait for every node to listen
	for _, ep := range endpoints {
		for {
			if resp, err := http.Get(ep + "/"); err == nil {
				resp.Body.Close()
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	exec := remote.NewHTTPExecutor(endpoints, 10*time.Minute)
	report, err := mcpi.Estimate(ctx, *totalPoints, 8765, mcpi.Remote{Executor: exec, JobCount: *jobs})
	if err != nil {
		logrus.Fatalf("remote estimation failed: %v", err)
	}

	fmt.Printf("Final π ≈ %.8f (error %.8f, %d jobs over %d nodes in %s)\n",
		report.Estimate, report.AbsError(), len(report.Results), *nServers, report.Duration)

	cancel()
	wg.Wait()
}
