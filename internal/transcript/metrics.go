package transcript

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcript_events_total",
		Help: "Transcript events emitted, by speaker",
	}, []string{"speaker"})

	metricNoiseFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_noise_filtered_total",
		Help: "Non-final events dropped by the digit-noise filter",
	})
)
