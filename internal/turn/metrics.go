package turn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_state_transitions_total",
		Help: "Turn controller state transitions",
	}, []string{"from", "to"})

	metricInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_interrupts_total",
		Help: "Total barge-in interrupts performed",
	})
)
