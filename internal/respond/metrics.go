package respond

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "respond_units_total",
		Help: "Synthesizable units forwarded to synthesis",
	})

	metricUnitsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "respond_units_skipped_total",
		Help: "Units skipped after a synthesis failure",
	})
)
