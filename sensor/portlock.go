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
	"os"
	"strings"
	"syscall"
	"time"
)

const cmdlineFile = "/boot/firmware/cmdline.txt"

// PortBusyError means another process holds the serial device.
type PortBusyError struct {
	Device string
}

func (e *PortBusyError) Error() string {
	return fmt.Sprintf("serial device %s is locked by another process", e.Device)
}

// serialConsoleActive reports whether the kernel console is attached
// to the primary serial port. Sharing the bus with a console garbles
// both sides, so opening must refuse in that case.
func serialConsoleActive() bool {
	b, err := os.ReadFile(cmdlineFile)
	if err != nil {
		return false
	}
	return strings.Contains(string(b), "console=serial0")
}

// PortLock is an exclusive advisory lock on a serial device.
type PortLock struct {
	file *os.File
}

// AcquirePortLock flocks the device so two monitor processes cannot
// share the bus. A held lock is retried with the given wait between
// attempts before giving up with a PortBusyError.
func AcquirePortLock(device string, retries int, wait time.Duration) (*PortLock, error) {
	file, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	for i := retries; ; i-- {
		err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &PortLock{file: file}, nil
		}
		if errno, ok := err.(syscall.Errno); !ok || errno != syscall.EWOULDBLOCK {
			file.Close()
			return nil, err
		}
		if i <= 0 {
			file.Close()
			return nil, &PortBusyError{Device: device}
		}
		time.Sleep(wait)
	}
}

// Release drops the lock and closes the device file.
func (l *PortLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
