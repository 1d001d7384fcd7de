package serve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qcserestipy/gompi/pkg/remote"
)

type metrics struct {
	invocations *prometheus.CounterVec
	samples     prometheus.Counter
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpi",
			Name:      "invocations_total",
			Help:      "Function invocations handled, by function and outcome.",
		}, []string{"function", "status"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcpi",
			Name:      "samples_total",
			Help:      "Samples drawn by successful invocations.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpi",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent running a function.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"function"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpi",
			Name:      "invocations_in_flight",
			Help:      "Invocations currently running.",
		}),
	}
	reg.MustRegister(m.invocations, m.samples, m.duration, m.inFlight)
	return m
}

func (m *metrics) observe(req remote.Request, resp remote.Response, elapsed time.Duration) {
	status := string(StatusCompleted)
	if resp.Error != "" {
		status = string(StatusFailed)
	} else {
		m.samples.Add(float64(req.Args.SampleCount))
	}
	m.invocations.WithLabelValues(req.Function, status).Inc()
	m.duration.WithLabelValues(req.Function).Observe(elapsed.Seconds())
}
