package synth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_frames_total",
		Help: "Audio frames emitted by synthesis",
	})

	metricFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_failures_total",
		Help: "Units whose synthesis failed",
	})

	metricFetchMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synth_fetch_ms",
		Help:    "Time to fetch synthesized audio for a unit (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)
