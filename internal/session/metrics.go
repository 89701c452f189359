package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Live sessions",
	})

	metricInboundFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_inbound_frames_total",
		Help: "Inbound audio frames read from transports",
	})

	metricRecogDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_recognizer_drops_total",
		Help: "Inbound frames dropped by recognizer backpressure",
	})

	metricErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_errors_total",
		Help: "Pipeline errors by taxonomy code",
	}, []string{"code"})

	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_idle_evictions_total",
		Help: "Sessions destroyed for inactivity",
	})

	metricTurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_turn_first_audio_seconds",
		Help:    "Time from dispatch to first synthesized unit",
		Buckets: prometheus.DefBuckets,
	})
)
