package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
)

const namespace = "partsreserve"

// Outcome labels shared by engine operations.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// EngineMetrics counts reservation engine operations. A nil *EngineMetrics
// is valid and records nothing.
type EngineMetrics struct {
	operations          *prometheus.CounterVec
	bindFailures        prometheus.Counter
	invariantViolations prometheus.Counter
	partialShipments    prometheus.Counter
}

// NewEngineMetrics registers the engine collectors on reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Engine operations by name and outcome.",
	}, []string{"operation", "outcome", "code"})
	bindFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "reservation_bind_failures_total",
		Help:      "Reservations that failed to bind during a shipment.",
	})
	partialShipments := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "partial_shipments_total",
		Help:      "Shipments that left a request APPROVED with failed reservations.",
	})
	invariantViolations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "stock_invariant_violations_total",
		Help:      "Stock rows found violating quantity conservation.",
	})
	reg.MustRegister(operations, bindFailures, partialShipments, invariantViolations)
	return &EngineMetrics{
		operations:          operations,
		bindFailures:        bindFailures,
		partialShipments:    partialShipments,
		invariantViolations: invariantViolations,
	}
}

// ObserveOperation records one operation; code is the typed error code or
// empty on success.
func (m *EngineMetrics) ObserveOperation(operation string, code string) {
	if m == nil || m.operations == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	m.operations.WithLabelValues(normalizeLabel(operation), outcome, code).Inc()
}

// Observe records an operation outcome from its returned error. Untyped
// errors count as INTERNAL_ERROR.
func (m *EngineMetrics) Observe(operation string, err error) {
	code := ""
	if err != nil {
		code = string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			code = string(typed.Code())
		}
	}
	m.ObserveOperation(operation, code)
}

func (m *EngineMetrics) AddBindFailures(n int) {
	if m == nil || m.bindFailures == nil || n <= 0 {
		return
	}
	m.bindFailures.Add(float64(n))
}

func (m *EngineMetrics) IncPartialShipment() {
	if m == nil || m.partialShipments == nil {
		return
	}
	m.partialShipments.Inc()
}

func (m *EngineMetrics) AddInvariantViolations(n int) {
	if m == nil || m.invariantViolations == nil || n <= 0 {
		return
	}
	m.invariantViolations.Add(float64(n))
}
