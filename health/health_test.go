package health

import (
	"testing"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
)

func flatHistory(n int, voltage float64) []reading.Reading {
	hist := make([]reading.Reading, n)
	for i := range hist {
		hist[i] = reading.Reading{Voltage: voltage}
	}
	return hist
}

func TestNoOpBelowMinimumHistory(t *testing.T) {
	e := NewEstimator(12.0)
	assert.Equal(t, 100.0, e.SOH())

	got := e.Update(flatHistory(99, 12.0))
	assert.Equal(t, 100.0, got)
	assert.Equal(t, 100.0, e.SOH())
}

func TestDecayAtNominalVoltage(t *testing.T) {
	e := NewEstimator(12.0)
	got := e.Update(flatHistory(100, 12.0))
	// Voltage factor clamps at 1, so only the natural decay applies.
	assert.InDelta(t, 100.0*0.999, got, 1e-9)
}

func TestSaggedVoltageDecaysFaster(t *testing.T) {
	healthy := NewEstimator(12.0)
	sagged := NewEstimator(12.0)

	healthy.Update(flatHistory(100, 12.0))
	sagged.Update(flatHistory(100, 9.0)) // factor 0.75

	assert.Less(t, sagged.SOH(), healthy.SOH())
	assert.InDelta(t, 100.0*0.999*(0.8+0.2*0.75), sagged.SOH(), 1e-9)
}

func TestOnlyRecentVoltagesCount(t *testing.T) {
	e := NewEstimator(12.0)
	hist := append(flatHistory(500, 3.0), flatHistory(100, 12.0)...)
	got := e.Update(hist)
	// Last 100 readings are at nominal; the old sag is ignored.
	assert.InDelta(t, 100.0*0.999, got, 1e-9)
}

func TestClampAndRestore(t *testing.T) {
	e := NewEstimator(12.0)
	e.SetSOH(150)
	assert.Equal(t, 100.0, e.SOH())
	e.SetSOH(-5)
	assert.Equal(t, 0.0, e.SOH())

	e.SetSOH(42.5)
	assert.Equal(t, 42.5, e.SOH())
	e.Update(flatHistory(100, 0))
	assert.GreaterOrEqual(t, e.SOH(), 0.0)
}
