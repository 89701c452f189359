package utterance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "utterance_opened_total",
		Help: "Utterances opened, by speaker",
	}, []string{"speaker"})

	metricSealed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "utterance_sealed_total",
		Help: "Utterances sealed, by speaker",
	}, []string{"speaker"})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utterance_increments_dropped_total",
		Help: "Increments dropped for being empty or below the confidence floor",
	})
)
