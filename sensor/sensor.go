/*
bms-sentinel - Battery monitoring and kill switch control
Copyright (C) 2025, Packwatch

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package sensor produces calibrated battery readings from hardware.
// Read errors are transient by contract: the caller skips the tick and
// tries again on the next one.
package sensor

import (
	"github.com/packwatch/bms-sentinel/reading"
)

// Source produces one calibrated Reading per call. Implementations are
// constructed with their hardware handles injected; nothing in this
// package owns process-wide bus state.
type Source interface {
	Read() (reading.Reading, error)
	Close() error
}

// Calibration converts raw ADC voltages into physical units. The
// defaults match the bench hardware: a TMP36-style temperature sensor,
// a hall current sensor centred on 2.5V, and a resistor divider that
// maps full pack voltage onto the ADC's 5V range.
type Calibration struct {
	// VRef is the ADC reference voltage.
	VRef float64
	// VoltageFullScale is the pack voltage that reads as VRef after
	// the divider.
	VoltageFullScale float64
	// CurrentZeroVolts is the sensor output at zero current.
	CurrentZeroVolts float64
	// CurrentVoltsPerAmp is the sensor sensitivity.
	CurrentVoltsPerAmp float64
	// CurrentTrim is added to the converted current, compensating a
	// fixed sensor offset measured at installation.
	CurrentTrim float64
	// TempZeroVolts and TempDegreesPerVolt convert the temperature
	// sensor output, offset from TempZeroDegrees.
	TempZeroVolts      float64
	TempDegreesPerVolt float64
	TempZeroDegrees    float64
}

func DefaultCalibration() Calibration {
	return Calibration{
		VRef:               5.0,
		VoltageFullScale:   14.6,
		CurrentZeroVolts:   2.5,
		CurrentVoltsPerAmp: 0.1375,
		CurrentTrim:        -1.0,
		TempZeroVolts:      0.75,
		TempDegreesPerVolt: 100.0,
		TempZeroDegrees:    25.0,
	}
}

// Voltage converts an ADC channel voltage to pack volts.
func (c Calibration) Voltage(adcVolts float64) float64 {
	return adcVolts * (c.VoltageFullScale / c.VRef)
}

// Current converts an ADC channel voltage to amps.
func (c Calibration) Current(adcVolts float64) float64 {
	return (adcVolts-c.CurrentZeroVolts)/c.CurrentVoltsPerAmp + c.CurrentTrim
}

// Temperature converts an ADC channel voltage to degrees celsius.
func (c Calibration) Temperature(adcVolts float64) float64 {
	return c.TempDegreesPerVolt*(adcVolts-c.TempZeroVolts) + c.TempZeroDegrees
}
