package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
)

func TestEngineMetricsCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ObserveOperation("stock.reserve", "")
	m.ObserveOperation("stock.reserve", "")
	m.ObserveOperation("stock.reserve", "INSUFFICIENT_STOCK")
	m.AddBindFailures(2)
	m.IncPartialShipment()
	m.AddInvariantViolations(0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	family := findMetricFamily(mfs, "partsreserve_engine_operations_total")
	require.NotNil(t, family)
	var success, failure float64
	for _, metric := range family.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", OutcomeSuccess) {
			success += metric.GetCounter().GetValue()
		}
		if matchesLabel(metric.GetLabel(), "code", "INSUFFICIENT_STOCK") {
			failure += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, success)
	assert.Equal(t, 1.0, failure)

	bind := findMetricFamily(mfs, "partsreserve_engine_reservation_bind_failures_total")
	require.NotNil(t, bind)
	assert.Equal(t, 2.0, bind.GetMetric()[0].GetCounter().GetValue())

	violations := findMetricFamily(mfs, "partsreserve_engine_stock_invariant_violations_total")
	require.NotNil(t, violations)
	assert.Equal(t, 0.0, violations.GetMetric()[0].GetCounter().GetValue())
}

func TestNilEngineMetricsIsSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("x", "")
		m.AddBindFailures(1)
		m.IncPartialShipment()
		m.AddInvariantViolations(1)
	})
	assert.NotPanics(t, func() {
		NewEngineMetrics(nil).ObserveOperation("x", "")
	})
}

func TestObserveDerivesCodeFromError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.Observe("transfer.ship", pkgerrors.New(pkgerrors.CodePartialShipment, "partial"))
	m.Observe("transfer.ship", errors.New("boom"))
	m.Observe("transfer.ship", nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	family := findMetricFamily(mfs, "partsreserve_engine_operations_total")
	require.NotNil(t, family)

	codes := map[string]float64{}
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "code" {
				codes[label.GetValue()] += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, codes["PARTIAL_SHIPMENT"])
	assert.Equal(t, 1.0, codes["INTERNAL_ERROR"])
	assert.Equal(t, 1.0, codes[""])
}
