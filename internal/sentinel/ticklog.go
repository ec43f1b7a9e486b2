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
	"fmt"
	"os"

	"github.com/packwatch/bms-sentinel/eventlog"
)

// tickLog appends one CSV line per sample, trimmed to maxLines so the
// file stays bounded on a small device.
type tickLog struct {
	path     string
	maxLines int

	appends int
}

func (t *tickLog) Publish(s Status) {
	line := fmt.Sprintf("%s, %.3f, %.3f, %.2f, %.1f, %.2f, %v\n",
		s.Time.Format("2006-01-02 15:04:05"),
		s.Voltage, s.Current, s.Temperature, s.SOC, s.SOH, s.Connected)
	file, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		log.Errorf("opening reading log file: %v", err)
		return
	}
	if _, err := file.WriteString(line); err != nil {
		log.Errorf("writing reading log file: %v", err)
	}
	if err := file.Close(); err != nil {
		log.Errorf("closing reading log file: %v", err)
	}

	t.appends++
	if t.maxLines > 0 && t.appends >= t.maxLines {
		t.appends = 0
		if err := eventlog.TrimFile(t.path, t.maxLines); err != nil {
			log.Errorf("trimming reading log file: %v", err)
		}
	}
}

// multiSink fans a status snapshot out to several sinks.
type multiSink []StatusSink

func (m multiSink) Publish(s Status) {
	for _, sink := range m {
		sink.Publish(s)
	}
}
