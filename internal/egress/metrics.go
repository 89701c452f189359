package egress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "egress_frames_enqueued_total",
		Help: "Frames accepted into the outbound queue",
	})

	metricWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "egress_frames_written_total",
		Help: "Frames written to the transport",
	})

	metricFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "egress_frames_flushed_total",
		Help: "Frames discarded by flush",
	})
)
