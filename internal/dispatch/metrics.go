package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDispatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_requests_total",
		Help: "Utterances dispatched to the backend",
	})

	metricRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_retries_total",
		Help: "Transient backend failures retried",
	})

	metricUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_unavailable_total",
		Help: "Dispatches abandoned after the retry budget",
	})

	metricBindings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_bindings_created_total",
		Help: "Backend thread bindings created",
	})
)
