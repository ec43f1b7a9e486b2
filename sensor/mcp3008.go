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

package sensor

import (
	"fmt"
	"time"

	"github.com/packwatch/bms-sentinel/reading"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const (
	mcp3008MaxChannel = 7
	mcp3008Scale      = 1024.0
	mcp3008Speed      = 1350 * physic.KiloHertz
	adcReadAttempts   = 3
)

// ADCChannels maps sensors to MCP3008 input channels.
type ADCChannels struct {
	Voltage     int
	Current     int
	Temperature int
}

func DefaultADCChannels() ADCChannels {
	return ADCChannels{Voltage: 2, Temperature: 3, Current: 4}
}

func (c ADCChannels) validate() error {
	for _, ch := range []int{c.Voltage, c.Current, c.Temperature} {
		if ch < 0 || ch > mcp3008MaxChannel {
			return fmt.Errorf("adc channel %d out of range 0-%d", ch, mcp3008MaxChannel)
		}
	}
	return nil
}

// MCP3008 reads battery sensors through an MCP3008 ADC on the SPI bus.
type MCP3008 struct {
	port     spi.PortCloser
	conn     spi.Conn
	channels ADCChannels
	cal      Calibration
}

// OpenMCP3008 opens the named SPI port ("" for the first available) and
// configures it for the MCP3008.
func OpenMCP3008(portName string, channels ADCChannels, cal Calibration) (*MCP3008, error) {
	if err := channels.validate(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("opening SPI port %q: %w", portName, err)
	}
	conn, err := port.Connect(mcp3008Speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connecting to MCP3008: %w", err)
	}
	return &MCP3008{port: port, conn: conn, channels: channels, cal: cal}, nil
}

// Read samples all three channels and converts them to physical units.
// A failed channel read is retried a bounded number of times without
// sleeping; the whole call stays well inside a tick.
func (m *MCP3008) Read() (reading.Reading, error) {
	volts, err := m.channelVolts(m.channels.Voltage)
	if err != nil {
		return reading.Reading{}, err
	}
	amps, err := m.channelVolts(m.channels.Current)
	if err != nil {
		return reading.Reading{}, err
	}
	temp, err := m.channelVolts(m.channels.Temperature)
	if err != nil {
		return reading.Reading{}, err
	}
	return reading.Reading{
		Voltage:     m.cal.Voltage(volts),
		Current:     m.cal.Current(amps),
		Temperature: m.cal.Temperature(temp),
		Time:        time.Now(),
	}, nil
}

func (m *MCP3008) channelVolts(ch int) (float64, error) {
	var lastErr error
	for i := 0; i < adcReadAttempts; i++ {
		raw, err := m.readRaw(ch)
		if err == nil {
			return float64(raw) / mcp3008Scale * m.cal.VRef, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("reading adc channel %d: %w", ch, lastErr)
}

// readRaw performs the 3-byte single-ended conversion exchange and
// returns the 10 bit result.
func (m *MCP3008) readRaw(ch int) (int, error) {
	w := []byte{1, byte(8+ch) << 4, 0}
	r := make([]byte, 3)
	if err := m.conn.Tx(w, r); err != nil {
		return 0, err
	}
	return int(r[1]&3)<<8 | int(r[2]), nil
}

func (m *MCP3008) Close() error {
	return m.port.Close()
}
