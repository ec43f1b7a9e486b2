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

package sentinel

import (
	"encoding/json"
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.packwatch.BmsSentinel"
	dbusPath = "/org/packwatch/BmsSentinel"
)

type service struct {
	engine *Engine
}

// startService exposes manual disconnect/reconnect and the status
// snapshot over D-Bus for local tooling.
func startService(engine *Engine) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{engine: engine}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Disconnect latches a manual disconnect until Reconnect is called.
func (s service) Disconnect() *dbus.Error {
	log.Info("got DBus message 'Disconnect'")
	s.engine.EngageOverride()
	return nil
}

// Reconnect clears the manual latch. The battery reconnects on the
// next safe sample.
func (s service) Reconnect() *dbus.Error {
	log.Info("got DBus message 'Reconnect'")
	s.engine.ClearOverride()
	return nil
}

// Status returns the latest snapshot as JSON.
func (s service) Status() (string, *dbus.Error) {
	data, err := json.Marshal(s.engine.Status())
	if err != nil {
		return "", dbusError("Status", err)
	}
	return string(data), nil
}

func dbusError(method string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + method,
		Body: []interface{}{err.Error()},
	}
}
