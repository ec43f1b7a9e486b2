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

package reading

import "time"

// Channel identifies one of the monitored sensor channels.
type Channel string

const (
	Voltage     Channel = "voltage"
	Current     Channel = "current"
	Temperature Channel = "temperature"
)

// Channels lists all monitored channels in feature order. The order is
// part of the persisted model schema so it must not change between
// releases.
var Channels = []Channel{Voltage, Current, Temperature}

// Reading is one calibrated sample from all sensor channels. Values are
// in physical units: volts, amps and degrees celsius. A Reading is never
// modified once produced.
type Reading struct {
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Temperature float64   `json:"temperature"`
	Time        time.Time `json:"time"`
}

// Value returns the reading for a single channel.
func (r Reading) Value(ch Channel) float64 {
	switch ch {
	case Voltage:
		return r.Voltage
	case Current:
		return r.Current
	case Temperature:
		return r.Temperature
	}
	return 0
}

// Features returns the reading as a feature vector in Channels order,
// the layout the anomaly scorer trains and scores on.
func (r Reading) Features() []float64 {
	return []float64{r.Voltage, r.Current, r.Temperature}
}
