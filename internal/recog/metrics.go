package recog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recog_audio_bytes_total",
		Help: "Total audio bytes enqueued to the provider",
	})

	metricDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recog_drops_total",
		Help: "Audio chunks dropped under backpressure",
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recog_reconnects_total",
		Help: "Connections established to the provider",
	})

	metricCircuitOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recog_circuit_open_total",
		Help: "Circuit breaker open events",
	})

	metricConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recog_connect_ms",
		Help:    "Time to establish provider connection (ms)",
		Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
	})

	metricEmptyFinals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recog_empty_finals_total",
		Help: "Provider finals skipped for carrying no text",
	})
)
