package safety

import (
	"testing"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{
	Voltage:     Limit{Yellow: 14.0, Red: 14.5},
	Current:     Limit{Yellow: 4.0, Red: 4.5},
	Temperature: Limit{Yellow: 70.0, Red: 80.0},
}

func nominal() reading.Reading {
	return reading.Reading{Voltage: 12.5, Current: 2.0, Temperature: 35.0}
}

func TestLimitsValidation(t *testing.T) {
	assert.NoError(t, testLimits.Validate())

	bad := testLimits
	bad.Current = Limit{Yellow: 4.5, Red: 4.0}
	assert.Error(t, bad.Validate())

	equal := testLimits
	equal.Voltage = Limit{Yellow: 14.0, Red: 14.0}
	assert.Error(t, equal.Validate())

	_, err := NewEvaluator(bad, 5)
	assert.Error(t, err)
	_, err = NewEvaluator(testLimits, 0)
	assert.Error(t, err)
}

func TestRedBreachImmediate(t *testing.T) {
	e, err := NewEvaluator(testLimits, 5)
	require.NoError(t, err)

	// Single 14.6V reading with red=14.5 trips red on the very first
	// tick, no window needed.
	r := nominal()
	r.Voltage = 14.6
	v := e.Evaluate(r)
	assert.False(t, v.OK)
	assert.Equal(t, TierRed, v.Tier())
	require.Len(t, v.Breaches, 1)
	assert.Equal(t, reading.Voltage, v.Breaches[0].Channel)
	assert.False(t, v.Breaches[0].Averaged)

	// Repeated identical breaches keep yielding unsafe.
	for i := 0; i < 10; i++ {
		assert.False(t, e.Evaluate(r).OK)
	}
}

func TestYellowNeedsFullWindow(t *testing.T) {
	e, err := NewEvaluator(testLimits, 5)
	require.NoError(t, err)

	// 14.2V is above yellow (14.0) but below red (14.5). The first four
	// readings must pass, the fifth fills the window and trips yellow.
	r := nominal()
	r.Voltage = 14.2
	for i := 0; i < 4; i++ {
		v := e.Evaluate(r)
		assert.True(t, v.OK, "tick %d should be safe before window fills", i)
	}
	v := e.Evaluate(r)
	assert.False(t, v.OK)
	assert.Equal(t, TierYellow, v.Tier())
	require.Len(t, v.Breaches, 1)
	assert.True(t, v.Breaches[0].Averaged)
	assert.InDelta(t, 14.2, v.Breaches[0].Value, 1e-9)
}

func TestYellowToleratesSingleSpike(t *testing.T) {
	e, err := NewEvaluator(testLimits, 5)
	require.NoError(t, err)

	spike := nominal()
	spike.Current = 4.3 // above yellow, below red
	assert.True(t, e.Evaluate(spike).OK)
	for i := 0; i < 10; i++ {
		assert.True(t, e.Evaluate(nominal()).OK)
	}
}

func TestRedBreachDoesNotPolluteWindows(t *testing.T) {
	e, err := NewEvaluator(testLimits, 2)
	require.NoError(t, err)

	// A red breach is not pushed into the window, so the average only
	// ever sees the safe readings.
	hot := nominal()
	hot.Temperature = 90 // red
	assert.False(t, e.Evaluate(hot).OK)

	warm := nominal()
	warm.Temperature = 69
	assert.True(t, e.Evaluate(warm).OK)
	assert.True(t, e.Evaluate(warm).OK) // avg 69 < yellow 70
}

func TestMultipleChannelBreaches(t *testing.T) {
	e, err := NewEvaluator(testLimits, 5)
	require.NoError(t, err)

	r := nominal()
	r.Voltage = 15
	r.Temperature = 85
	v := e.Evaluate(r)
	assert.False(t, v.OK)
	assert.Len(t, v.Breaches, 2)
}
