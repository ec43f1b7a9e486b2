package sensor

import (
	"testing"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationConversions(t *testing.T) {
	cal := DefaultCalibration()

	// Full-scale ADC voltage maps to full pack voltage.
	assert.InDelta(t, 14.6, cal.Voltage(5.0), 1e-9)
	assert.InDelta(t, 7.3, cal.Voltage(2.5), 1e-9)

	// Hall sensor at its zero-current output converts to just the trim.
	assert.InDelta(t, -1.0, cal.Current(2.5), 1e-9)
	assert.InDelta(t, 1.0, cal.Current(2.5+2*0.1375), 1e-9)

	// TMP36-style curve: 0.75V is 25C, each extra 10mV is 1C.
	assert.InDelta(t, 25.0, cal.Temperature(0.75), 1e-9)
	assert.InDelta(t, 35.0, cal.Temperature(0.85), 1e-9)
}

func TestADCChannelValidation(t *testing.T) {
	assert.NoError(t, DefaultADCChannels().validate())
	assert.Error(t, ADCChannels{Voltage: 8, Current: 0, Temperature: 1}.validate())
	assert.Error(t, ADCChannels{Voltage: -1, Current: 0, Temperature: 1}.validate())
}

func TestParseFrameRoundTrip(t *testing.T) {
	orig := reading.Reading{Voltage: 12.5, Current: 2.25, Temperature: 36.125}
	frame := buildFrame(orig)

	got, err := parseFrame(frame)
	require.NoError(t, err)
	assert.InDelta(t, orig.Voltage, got.Voltage, 1e-3)
	assert.InDelta(t, orig.Current, got.Current, 1e-3)
	assert.InDelta(t, orig.Temperature, got.Temperature, 1e-3)
	assert.False(t, got.Time.IsZero())
}

func TestParseFrameRejectsCorruption(t *testing.T) {
	good := buildFrame(reading.Reading{Voltage: 12.5, Current: 2, Temperature: 36})

	// Flip a payload digit: the checksum must catch it.
	bad := []byte(good)
	bad[6] = '9'
	_, err := parseFrame(string(bad))
	assert.ErrorContains(t, err, "checksum mismatch")

	_, err = parseFrame("garbage")
	assert.Error(t, err)

	_, err = parseFrame("$BMS,1,2,3")
	assert.ErrorContains(t, err, "missing checksum")

	_, err = parseFrame("$BMS,1,2*00")
	assert.Error(t, err)
}

func TestSimulatedStaysNominal(t *testing.T) {
	s := NewSimulated(1)
	for i := 0; i < 100; i++ {
		r, err := s.Read()
		require.NoError(t, err)
		assert.InDelta(t, 12.5, r.Voltage, 0.31)
		assert.InDelta(t, 2.0, r.Current, 0.51)
		assert.InDelta(t, 35.0, r.Temperature, 5.1)
	}
}
