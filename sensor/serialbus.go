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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/sigurn/crc8"
	"github.com/tarm/serial"
)

// Serial frame format, one reading per line:
//
//	$BMS,<voltage>,<current>,<temperature>*<crc>
//
// where <crc> is the CRC-8 of everything between '$' and '*' in upper
// case hex. Values are decimal, units volts/amps/celsius.
const serialFramePrefix = "$BMS,"

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31, // Polynomial 1 + x^4 + x^5 + x^8
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// SerialBus reads frames from an external BMS front end on an RS485
// serial line.
type SerialBus struct {
	port    io.ReadCloser
	lock    *PortLock
	scanner *bufio.Scanner
}

// OpenSerialBus opens the serial device with an 8N1 configuration and a
// read timeout so a silent bus surfaces as a transient error rather
// than blocking the sampling loop. The device is flocked for the life
// of the bus.
func OpenSerialBus(device string, baud int, readTimeout time.Duration) (*SerialBus, error) {
	if serialConsoleActive() {
		return nil, fmt.Errorf("serial device %s is in use by the terminal console", device)
	}
	lock, err := AcquirePortLock(device, 3, time.Second)
	if err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("opening serial port %s: %w", device, err)
	}
	return &SerialBus{port: port, lock: lock, scanner: bufio.NewScanner(port)}, nil
}

func (s *SerialBus) Read() (reading.Reading, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			// Reset the scanner so one bad read doesn't wedge the
			// source for every later tick.
			s.scanner = bufio.NewScanner(s.port)
			return reading.Reading{}, fmt.Errorf("reading serial frame: %w", err)
		}
		s.scanner = bufio.NewScanner(s.port)
		return reading.Reading{}, fmt.Errorf("no serial frame before timeout")
	}
	return parseFrame(s.scanner.Text())
}

func (s *SerialBus) Close() error {
	err := s.port.Close()
	if lockErr := s.lock.Release(); err == nil {
		err = lockErr
	}
	return err
}

func parseFrame(line string) (reading.Reading, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, serialFramePrefix) {
		return reading.Reading{}, fmt.Errorf("bad frame prefix: %q", line)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		return reading.Reading{}, fmt.Errorf("frame missing checksum: %q", line)
	}

	payload := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return reading.Reading{}, fmt.Errorf("bad frame checksum %q: %w", line[star+1:], err)
	}
	if got := crc8.Checksum([]byte(payload), crcTable); got != byte(want) {
		return reading.Reading{}, fmt.Errorf("frame checksum mismatch: got 0x%02X want 0x%02X", got, byte(want))
	}

	fields := strings.Split(payload, ",")
	if len(fields) != 4 {
		return reading.Reading{}, fmt.Errorf("expected 4 frame fields, got %d", len(fields))
	}
	values := make([]float64, 3)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return reading.Reading{}, fmt.Errorf("bad frame value %q: %w", f, err)
		}
		values[i] = v
	}
	return reading.Reading{
		Voltage:     values[0],
		Current:     values[1],
		Temperature: values[2],
		Time:        time.Now(),
	}, nil
}

// buildFrame is the inverse of parseFrame, used by tests and bench
// tooling.
func buildFrame(r reading.Reading) string {
	payload := fmt.Sprintf("BMS,%.3f,%.3f,%.3f", r.Voltage, r.Current, r.Temperature)
	return fmt.Sprintf("$%s*%02X", payload, crc8.Checksum([]byte(payload), crcTable))
}
