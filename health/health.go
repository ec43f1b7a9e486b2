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

// Package health maintains the state-of-health estimate.
//
// The estimate is a deliberately crude proxy for internal-resistance
// degradation: a slow multiplicative decay corrected by how close the
// recent average voltage sits to nominal. It is not a characterised
// battery model and should not be read as one.
package health

import (
	"github.com/packwatch/bms-sentinel/reading"
)

const (
	decayRate      = 0.999
	baseFactor     = 0.8
	voltageWeight  = 0.2
	defaultMinimum = 100
	recentReadings = 100
)

// Estimator tracks a monotone-ish SOH scalar in [0, 100]. Updates are
// count-based: the engine calls Update on its own cadence, and the
// estimator is a no-op until enough history has accumulated.
type Estimator struct {
	soh            float64
	nominalVoltage float64
	minHistory     int
}

// NewEstimator starts at 100% SOH (a new battery) against the given
// nominal pack voltage.
func NewEstimator(nominalVoltage float64) *Estimator {
	return &Estimator{
		soh:            100.0,
		nominalVoltage: nominalVoltage,
		minHistory:     defaultMinimum,
	}
}

func (e *Estimator) SOH() float64 {
	return e.soh
}

// SetSOH installs a persisted value, clamped to [0, 100].
func (e *Estimator) SetSOH(soh float64) {
	e.soh = clamp(soh, 0, 100)
}

// Update recomputes SOH from the recent history and returns the new
// value. With fewer than the minimum history readings it returns the
// prior value unchanged.
//
// new = soh * 0.999 * (0.8 + 0.2 * clamp(meanV/nominal, 0, 1)), so SOH
// never increases except through the bounded voltage-health correction
// of an earlier sag.
func (e *Estimator) Update(hist []reading.Reading) float64 {
	if len(hist) < e.minHistory {
		return e.soh
	}

	recent := hist
	if len(recent) > recentReadings {
		recent = recent[len(recent)-recentReadings:]
	}
	sum := 0.0
	for _, r := range recent {
		sum += r.Voltage
	}
	meanVoltage := sum / float64(len(recent))

	voltageFactor := clamp(meanVoltage/e.nominalVoltage, 0, 1)
	e.soh = clamp(e.soh*decayRate*(baseFactor+voltageWeight*voltageFactor), 0, 100)
	return e.soh
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
