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

package anomaly

import (
	"fmt"
	"math"
)

// ScalerParams are the explicit per-feature statistics of a fitted
// scaler. They are part of the persisted model schema.
type ScalerParams struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Scaler standardises feature vectors to zero mean and unit variance so
// that volts, amps and degrees contribute comparably to the outlier
// measure.
type Scaler struct {
	params ScalerParams
}

// FitScaler computes per-feature means and standard deviations from the
// given feature rows.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	dims := len(rows[0])
	means := make([]float64, dims)
	stds := make([]float64, dims)
	for _, row := range rows {
		for i, v := range row {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(len(rows))
	}
	for _, row := range rows {
		for i, v := range row {
			d := v - means[i]
			stds[i] += d * d
		}
	}
	for i := range stds {
		stds[i] = math.Sqrt(stds[i] / float64(len(rows)))
		if stds[i] == 0 {
			// A constant feature still has to transform to a finite
			// value.
			stds[i] = 1
		}
	}
	return &Scaler{params: ScalerParams{Means: means, Stds: stds}}
}

// ScalerFromParams rebuilds a scaler from persisted statistics.
func ScalerFromParams(p ScalerParams) (*Scaler, error) {
	if len(p.Means) != len(p.Stds) {
		return nil, fmt.Errorf("scaler params: %d means but %d stds", len(p.Means), len(p.Stds))
	}
	return &Scaler{params: p}, nil
}

func (s *Scaler) Params() ScalerParams {
	return s.params
}

// Transform standardises one feature vector.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i < len(s.params.Means) {
			out[i] = (v - s.params.Means[i]) / s.params.Stds[i]
		} else {
			out[i] = v
		}
	}
	return out
}
