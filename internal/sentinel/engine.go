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
	"strings"
	"sync"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/packwatch/bms-sentinel/actuator"
	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/battery"
	"github.com/packwatch/bms-sentinel/eventlog"
	"github.com/packwatch/bms-sentinel/health"
	"github.com/packwatch/bms-sentinel/history"
	"github.com/packwatch/bms-sentinel/modelstore"
	"github.com/packwatch/bms-sentinel/reading"
	"github.com/packwatch/bms-sentinel/safety"
	"github.com/packwatch/bms-sentinel/sensor"
)

// actuatorAlarmAfter is the number of consecutive actuator failures
// before a critical event is raised.
const actuatorAlarmAfter = 3

// Status is a point-in-time snapshot of the engine, published over
// D-Bus and MQTT.
type Status struct {
	Time           time.Time      `json:"time"`
	Voltage        float64        `json:"voltage"`
	Current        float64        `json:"current"`
	Temperature    float64        `json:"temperature"`
	Tier           safety.Tier    `json:"tier,omitempty"`
	AnomalyScore   float64        `json:"anomalyScore"`
	AnomalyLevel   string         `json:"anomalyLevel"`
	SOC            float32        `json:"soc"`
	SOH            float64        `json:"soh"`
	Connected      bool           `json:"connected"`
	ManualOverride bool           `json:"manualOverride"`
	Chemistry      string         `json:"chemistry,omitempty"`
	CellCount      int            `json:"cellCount,omitempty"`
	ReadError      string         `json:"readError,omitempty"`
}

// StatusSink receives a status snapshot after every sample.
type StatusSink interface {
	Publish(Status)
}

// persistentScorer is implemented by scorers whose fitted state can be
// saved and restored across restarts.
type persistentScorer interface {
	Params() *anomaly.Params
	Restore(p *anomaly.Params) error
}

// Engine runs the sampling loop and owns the connect/disconnect
// decision. All state transitions happen on the sampling goroutine;
// manual override requests from other goroutines take the same lock.
type Engine struct {
	cfg    Config
	source sensor.Source
	relay  actuator.Port
	events eventlog.Log
	store  modelstore.Store
	scorer anomaly.Scorer

	eval *safety.Evaluator
	soh  *health.Estimator
	hist *history.Buffer

	batteryConf *goconfig.Battery
	sink        StatusSink

	mu               sync.Mutex
	connected        bool
	override         bool
	ticks            int
	readFailures     int
	actuatorFailures int
	pack             *goconfig.BatteryPack
	status           Status
}

// NewEngine wires the engine and restores persisted model state. The
// relay is assumed to already be driven to cfg.BootConnected; the
// engine only actuates on transitions.
func NewEngine(
	cfg Config,
	source sensor.Source,
	relay actuator.Port,
	events eventlog.Log,
	store modelstore.Store,
	scorer anomaly.Scorer,
	batteryConf *goconfig.Battery,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eval, err := safety.NewEvaluator(cfg.Limits, cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		source:      source,
		relay:       relay,
		events:      events,
		store:       store,
		scorer:      scorer,
		eval:        eval,
		soh:         health.NewEstimator(cfg.NominalVoltage),
		hist:        history.NewBuffer(cfg.HistorySize),
		batteryConf: batteryConf,
		connected:   cfg.BootConnected,
	}
	e.status.Connected = e.connected
	e.restore()
	return e, nil
}

// SetStatusSink must be called before Run.
func (e *Engine) SetStatusSink(sink StatusSink) {
	e.sink = sink
}

func (e *Engine) restore() {
	snap, err := e.store.Load()
	if err != nil {
		log.Warnf("failed to load model state, starting fresh: %v", err)
		return
	}
	if snap == nil {
		log.Info("no persisted model state, starting fresh")
		return
	}
	e.soh.SetSOH(snap.SOH)
	ps, ok := e.scorer.(persistentScorer)
	if snap.Scorer != nil && ok {
		if err := ps.Restore(snap.Scorer); err != nil {
			log.Warnf("persisted scorer state rejected: %v", err)
		} else {
			log.Infof("restored model state saved at %s", snap.SavedAt.Format(time.RFC3339))
		}
	}
}

// Persist writes the current SOH and scorer state. Failures are
// logged, never fatal; monitoring continues on the in-memory state.
func (e *Engine) Persist() {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := &modelstore.Snapshot{
		Version: modelstore.SnapshotVersion,
		SavedAt: time.Now(),
		SOH:     e.soh.SOH(),
	}
	if ps, ok := e.scorer.(persistentScorer); ok {
		snap.Scorer = ps.Params()
	}
	if err := e.store.Save(snap); err != nil {
		log.Errorf("failed to persist model state: %v", err)
	}
}

// Run samples until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SamplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick performs one full sample, evaluate, decide cycle.
func (e *Engine) Tick() {
	r, err := e.source.Read()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.readFailed(err)
		return
	}
	e.readFailures = 0

	verdict := e.eval.Evaluate(r)
	result := e.scorer.Score(r)
	e.hist.Append(r)
	e.ticks++
	if e.ticks%e.cfg.SOHEvery == 0 {
		e.soh.Update(e.hist.Snapshot())
	}

	e.decide(r, verdict, result)
	e.updateStatus(r, verdict, result)
}

// readFailed holds the last known state while sensor reads fail, then
// fails safe once the failure is sustained.
func (e *Engine) readFailed(err error) {
	e.readFailures++
	log.Warnf("sensor read failed (%d consecutive): %v", e.readFailures, err)
	e.status.ReadError = err.Error()
	if e.readFailures == e.cfg.MaxReadFailures && e.connected {
		e.transition(false, "sensorFailure", map[string]interface{}{
			"consecutiveFailures": e.readFailures,
			"lastError":           err.Error(),
		}, eventlog.SeverityCritical)
		e.status.Connected = e.connected
	}
}

func (e *Engine) decide(r reading.Reading, verdict safety.Verdict, result anomaly.Result) {
	causes := make([]string, 0, 3)
	if !verdict.OK {
		causes = append(causes, string(verdict.Tier()))
	}
	if result.IsAnomaly {
		causes = append(causes, "anomaly")
	}
	if e.override {
		causes = append(causes, "manual")
	}

	unsafe := len(causes) > 0
	switch {
	case e.connected && unsafe:
		details := map[string]interface{}{
			"cause":       strings.Join(causes, "+"),
			"voltage":     r.Voltage,
			"current":     r.Current,
			"temperature": r.Temperature,
		}
		if result.IsAnomaly {
			details["anomalyScore"] = result.Score
		}
		for _, b := range verdict.Breaches {
			details[string(b.Channel)+"Breach"] = b.String()
		}
		severity := eventlog.SeverityWarning
		if verdict.Tier() == safety.TierRed || result.IsAnomaly {
			severity = eventlog.SeverityCritical
		}
		e.transition(false, strings.Join(causes, "+"), details, severity)
	case !e.connected && !unsafe:
		e.transition(true, "recovered", map[string]interface{}{
			"voltage":     r.Voltage,
			"current":     r.Current,
			"temperature": r.Temperature,
		}, eventlog.SeverityInfo)
	}
}

// transition flips the connection state, emits one event and makes one
// actuator call. An actuator failure never blocks the state change;
// the engine must keep an accurate model of what it asked for.
func (e *Engine) transition(connected bool, cause string, details map[string]interface{}, severity eventlog.Severity) {
	e.connected = connected
	eventType := "disconnect"
	if connected {
		eventType = "reconnect"
	}
	log.Infof("%s battery (%s)", eventType, cause)
	e.events.Append(eventlog.Event{
		Timestamp: time.Now(),
		Severity:  severity,
		Type:      eventType,
		Details:   details,
	})
	if err := e.relay.SetConnected(connected); err != nil {
		e.actuatorFailures++
		log.Errorf("actuator failed (%d consecutive): %v", e.actuatorFailures, err)
		if e.actuatorFailures == actuatorAlarmAfter {
			e.events.Append(eventlog.Event{
				Timestamp: time.Now(),
				Severity:  eventlog.SeverityCritical,
				Type:      "actuatorFault",
				Details: map[string]interface{}{
					"consecutiveFailures": e.actuatorFailures,
					"lastError":           err.Error(),
				},
			})
		}
		return
	}
	e.actuatorFailures = 0
}

func (e *Engine) updateStatus(r reading.Reading, verdict safety.Verdict, result anomaly.Result) {
	s := Status{
		Time:           r.Time,
		Voltage:        r.Voltage,
		Current:        r.Current,
		Temperature:    r.Temperature,
		Tier:           verdict.Tier(),
		AnomalyScore:   result.Score,
		AnomalyLevel:   anomalyLevel(result),
		SOH:            e.soh.SOH(),
		SOC:            -1,
		Connected:      e.connected,
		ManualOverride: e.override,
	}
	if e.pack == nil && e.batteryConf != nil {
		pack, err := battery.PackFor(e.batteryConf, float32(r.Voltage))
		if err != nil {
			log.Debugf("battery pack detection: %v", err)
		} else {
			e.pack = pack
		}
	}
	if e.pack != nil {
		s.SOC = battery.Percent(e.pack, float32(r.Voltage))
		if e.pack.Type != nil {
			s.Chemistry = e.pack.Type.Chemistry
		}
		s.CellCount = e.pack.CellCount
	}
	e.status = s
	if e.sink != nil {
		e.sink.Publish(s)
	}
}

func anomalyLevel(r anomaly.Result) string {
	switch {
	case r.IsAnomaly:
		return "anomaly"
	case r.Score >= 0.5:
		return "watch"
	default:
		return "normal"
	}
}

// EngageOverride latches a manual disconnect. The battery drops
// immediately and stays down through any number of nominal readings
// until ClearOverride is called.
func (e *Engine) EngageOverride() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.override {
		return
	}
	e.override = true
	e.status.ManualOverride = true
	if e.connected {
		e.transition(false, "manual", map[string]interface{}{"cause": "manual"}, eventlog.SeverityWarning)
		e.status.Connected = e.connected
	}
}

// ClearOverride releases the manual latch. Reconnection waits for the
// next tick so the normal safety checks still apply.
func (e *Engine) ClearOverride() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.override = false
	e.status.ManualOverride = false
}

func (e *Engine) Overridden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.override
}

func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Status returns the snapshot from the most recent sample.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// History exposes the reading buffer for background retraining.
func (e *Engine) History() *history.Buffer {
	return e.hist
}
