package vad

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_frames_total",
		Help: "Total frames observed by the detector",
	})

	metricStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_starts_total",
		Help: "Total speech start events",
	})

	metricEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_ends_total",
		Help: "Total speech end events",
	})

	metricGuardBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_guard_blocks_total",
		Help: "Frames above threshold blocked by guard window",
	})
)
