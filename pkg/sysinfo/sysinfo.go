// Package sysinfo reports the parallelism available to the estimator.
package sysinfo

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"
)

// AvailableParallelism returns the number of hardware execution contexts the
// process may use. It prefers runtime.NumCPU, which honours the affinity
// mask, then the logical core count from cpuid, and never returns less
// than 1.
func AvailableParallelism() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return 1
}

// Info describes the host CPU.
type Info struct {
	Brand          string `json:"brand"`
	Vendor         string `json:"vendor"`
	PhysicalCores  int    `json:"physical_cores"`
	LogicalCores   int    `json:"logical_cores"`
	ThreadsPerCore int    `json:"threads_per_core"`
	NumCPU         int    `json:"num_cpu"`
	GOMAXPROCS     int    `json:"gomaxprocs"`
	Parallelism    int    `json:"parallelism"`
}

// Describe collects Info for the current host.
func Describe() Info {
	return Info{
		Brand:          cpuid.CPU.BrandName,
		Vendor:         cpuid.CPU.VendorString,
		PhysicalCores:  cpuid.CPU.PhysicalCores,
		LogicalCores:   cpuid.CPU.LogicalCores,
		ThreadsPerCore: cpuid.CPU.ThreadsPerCore,
		NumCPU:         runtime.NumCPU(),
		GOMAXPROCS:     runtime.GOMAXPROCS(0),
		Parallelism:    AvailableParallelism(),
	}
}

// Fields renders Info for structured logging.
func (i Info) Fields() logrus.Fields {
	return logrus.Fields{
		"brand":            i.Brand,
		"vendor":           i.Vendor,
		"physical_cores":   i.PhysicalCores,
		"logical_cores":    i.LogicalCores,
		"threads_per_core": i.ThreadsPerCore,
		"num_cpu":          i.NumCPU,
		"gomaxprocs":       i.GOMAXPROCS,
		"parallelism":      i.Parallelism,
	}
}
