package savedmodel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_saved_models_loaded_total",
		Help: "Total number of saved models loaded through the binding",
	})

	modelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nock_saved_models_active",
		Help: "Saved models currently held by the registry",
	})

	modelRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_model_runs_total",
		Help: "Total number of signature runs dispatched",
	})
)
