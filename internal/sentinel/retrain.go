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
	"context"
	"errors"
	"time"

	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/eventlog"
)

// Retrainer refits the anomaly model from accumulated history on a
// fixed interval. It runs on its own goroutine; the engine keeps
// scoring on the previous fit while a refit is in progress.
type Retrainer struct {
	Engine   *Engine
	Interval time.Duration
	Events   eventlog.Log
}

// Run retrains until the context is cancelled. Cancellation during the
// wait is prompt; a refit already underway runs to completion.
func (rt *Retrainer) Run(ctx context.Context) {
	timer := time.NewTimer(rt.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			rt.retrain()
			timer.Reset(rt.Interval)
		}
	}
}

func (rt *Retrainer) retrain() {
	hist := rt.Engine.History().Snapshot()
	start := time.Now()
	err := rt.Engine.scorer.Fit(hist)
	if errors.Is(err, anomaly.ErrInsufficientHistory) {
		log.Debugf("skipping model refit, only %d readings", len(hist))
		return
	}
	if err != nil {
		// The previous fit stays in service.
		log.Errorf("model refit failed: %v", err)
		rt.Events.Append(eventlog.Event{
			Timestamp: time.Now(),
			Severity:  eventlog.SeverityWarning,
			Type:      "modelRetrainFailed",
			Details:   map[string]interface{}{"error": err.Error()},
		})
		return
	}
	log.Infof("model refit on %d readings in %s", len(hist), time.Since(start).Round(time.Millisecond))
	rt.Events.Append(eventlog.Event{
		Timestamp: time.Now(),
		Severity:  eventlog.SeverityInfo,
		Type:      "modelRetrained",
		Details:   map[string]interface{}{"readings": len(hist)},
	})
	rt.Engine.Persist()
}
