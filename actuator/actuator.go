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

// Package actuator drives the relay that physically connects and
// disconnects the battery.
package actuator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Port sets the physical connection state. Implementations are handed
// their GPIO line at construction; there is no process-wide pin state.
type Port interface {
	SetConnected(connected bool) error
}

// Relay drives a relay or kill-switch MOSFET through a GPIO line. With
// ActiveLow set the line is driven low to connect, for kill-switch
// wiring where asserting the pin severs the battery.
type Relay struct {
	pin       gpio.PinIO
	activeLow bool
}

// OpenRelay looks up the GPIO line by name (e.g. "GPIO26") and drives
// it to the given initial state.
func OpenRelay(pinName string, activeLow, initialConnected bool) (*Relay, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("no GPIO pin named %q", pinName)
	}
	r := &Relay{pin: pin, activeLow: activeLow}
	if err := r.SetConnected(initialConnected); err != nil {
		return nil, fmt.Errorf("setting initial relay state: %w", err)
	}
	return r, nil
}

func (r *Relay) SetConnected(connected bool) error {
	level := gpio.Level(connected)
	if r.activeLow {
		level = !level
	}
	return r.pin.Out(level)
}

// Recorder is a Port that records every call, for tests.
type Recorder struct {
	Calls []bool
	Err   error
}

func (r *Recorder) SetConnected(connected bool) error {
	r.Calls = append(r.Calls, connected)
	return r.Err
}
