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

// Package sentinelclient calls the running bms-sentinel service over
// D-Bus.
package sentinelclient

import (
	"github.com/godbus/dbus"
)

const (
	dbusName = "org.packwatch.BmsSentinel"
	dbusPath = "/org/packwatch/BmsSentinel"
)

func getObject() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return conn.Object(dbusName, dbusPath), nil
}

// Disconnect latches a manual disconnect; the battery stays down until
// Reconnect is called.
func Disconnect() error {
	obj, err := getObject()
	if err != nil {
		return err
	}
	return obj.Call(dbusName+".Disconnect", 0).Err
}

// Reconnect clears the manual latch. The service reconnects on its
// next safe sample.
func Reconnect() error {
	obj, err := getObject()
	if err != nil {
		return err
	}
	return obj.Call(dbusName+".Reconnect", 0).Err
}

// Status returns the latest status snapshot as JSON.
func Status() (string, error) {
	obj, err := getObject()
	if err != nil {
		return "", err
	}
	var status string
	if err := obj.Call(dbusName+".Status", 0).Store(&status); err != nil {
		return "", err
	}
	return status, nil
}
