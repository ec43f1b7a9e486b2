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

// Package eventlog records structured, timestamped safety events.
// Appending an event must never fail the operation that produced it; a
// backend that can't deliver logs the problem and drops the event.
package eventlog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Severity of an event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one structured log entry.
type Event struct {
	Timestamp time.Time
	Severity  Severity
	Type      string
	Details   map[string]interface{}
}

func (e Event) String() string {
	parts := make([]string, 0, len(e.Details))
	for k, v := range e.Details {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.TrimSpace(fmt.Sprintf("%s %s", e.Type, strings.Join(parts, " ")))
}

// Log is the append-only event sink.
type Log interface {
	Append(Event)
}

// LogrusLog writes events to the process log.
type LogrusLog struct {
	Logger *logrus.Logger
}

func (l *LogrusLog) Append(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = log
	}
	entry := logger.WithFields(logrus.Fields(e.Details)).WithField("event", e.Type)
	switch e.Severity {
	case SeverityCritical:
		entry.Error(e.String())
	case SeverityWarning:
		entry.Warn(e.String())
	default:
		entry.Info(e.String())
	}
}

// Reporter forwards events to the device event service so they reach
// whatever fleet tooling collects them. Delivery failures are logged
// and the event dropped; the safety loop never blocks on reporting.
type Reporter struct{}

func (r *Reporter) Append(e Event) {
	err := eventclient.AddEvent(eventclient.Event{
		Timestamp: e.Timestamp,
		Type:      e.Type,
		Details:   e.Details,
	})
	if err != nil {
		log.Errorf("reporting %s event: %v", e.Type, err)
	}
}

// FileLog appends events to a CSV file, keeping at most maxLines of
// history so the file can't grow without bound on a small device.
type FileLog struct {
	Path     string
	MaxLines int

	appends int
}

func (f *FileLog) Append(e Event) {
	line := fmt.Sprintf("%s, %s, %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Severity, e.String())
	file, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		log.Errorf("opening event log file: %v", err)
		return
	}
	if _, err := file.WriteString(line); err != nil {
		log.Errorf("writing event log file: %v", err)
	}
	if err := file.Close(); err != nil {
		log.Errorf("closing event log file: %v", err)
	}

	f.appends++
	if f.MaxLines > 0 && f.appends >= f.MaxLines {
		f.appends = 0
		if err := TrimFile(f.Path, f.MaxLines); err != nil {
			log.Errorf("trimming event log file: %v", err)
		}
	}
}

// TrimFile rewrites the file keeping only the last maxLines lines.
func TrimFile(path string, maxLines int) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= maxLines {
		return nil
	}
	lines = lines[len(lines)-maxLines:]
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Multi fans an event out to several sinks.
type Multi []Log

func (m Multi) Append(e Event) {
	for _, l := range m {
		l.Append(e)
	}
}

// Recorder collects events in memory for tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Append(e Event) {
	r.Events = append(r.Events, e)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
