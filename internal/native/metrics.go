package native

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tensorsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_tensors_allocated_total",
		Help: "Total number of tensors created",
	})

	tensorsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_tensors_released_total",
		Help: "Total number of tensors deleted",
	})

	liveTensorBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nock_tensor_live_bytes",
		Help: "Bytes currently held by live tensor buffers",
	})

	sessionsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_sessions_loaded_total",
		Help: "Total number of saved model sessions loaded",
	})
)
