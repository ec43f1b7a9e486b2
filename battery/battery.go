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

// Package battery identifies the connected battery pack and derives the
// state of charge from its voltage curve.
package battery

import (
	goconfig "github.com/TheCacophonyProject/go-config"
)

// PackFor resolves the battery pack for the observed voltage. A
// manually configured chemistry wins; otherwise the pack is
// auto-detected from the voltage range.
func PackFor(conf *goconfig.Battery, voltage float32) (*goconfig.BatteryPack, error) {
	if conf != nil && conf.IsManuallyConfigured() {
		return conf.GetBatteryPack(voltage)
	}
	return goconfig.AutoDetectBatteryPack(voltage)
}

// Percent interpolates the state of charge from the pack's per-cell
// voltage curve. Returns -1 when the pack or its curve is unknown.
// Voltages outside the curve clamp to its ends.
func Percent(pack *goconfig.BatteryPack, voltage float32) float32 {
	if pack == nil || pack.Type == nil || pack.CellCount <= 0 {
		return -1
	}
	volts := pack.Type.Voltages
	percents := pack.Type.Percent
	if len(volts) == 0 || len(volts) != len(percents) {
		return -1
	}

	cellVoltage := voltage / float32(pack.CellCount)
	if cellVoltage <= volts[0] {
		return percents[0]
	}
	if cellVoltage >= volts[len(volts)-1] {
		return percents[len(percents)-1]
	}
	for i := 1; i < len(volts); i++ {
		if cellVoltage <= volts[i] {
			frac := (cellVoltage - volts[i-1]) / (volts[i] - volts[i-1])
			return percents[i-1] + frac*(percents[i]-percents[i-1])
		}
	}
	return percents[len(percents)-1]
}
