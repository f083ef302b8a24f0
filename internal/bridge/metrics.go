package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nock_boundary_errors_total",
		Help: "Total number of errors raised across the boundary, by failure kind",
	}, []string{"kind"})

	shapesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nock_shapes_extracted_total",
		Help: "Total number of shape descriptors extracted from script arrays",
	})

	tensorsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nock_tensors_built_total",
		Help: "Total number of tensors built by the bridge, by buffer path",
	}, []string{"path"})
)

const (
	kindValidation    = "validation"
	kindScriptStatus  = "script_status"
	kindRuntimeStatus = "runtime_status"
	kindConstructor   = "constructor"
	kindNullHandle    = "null_handle"
	kindUnknownEnum   = "unknown_enum"
	kindGeneric       = "generic"
)
