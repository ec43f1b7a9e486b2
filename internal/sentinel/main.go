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

// Package sentinel samples the battery, enforces safety limits and
// drives the kill switch relay.
package sentinel

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/packwatch/bms-sentinel/actuator"
	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/eventlog"
	"github.com/packwatch/bms-sentinel/modelstore"
	"github.com/packwatch/bms-sentinel/sensor"
	"github.com/sirupsen/logrus"
	"periph.io/x/host/v3"
)

var (
	log     = logrus.New()
	version = "<not set>"
)

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

// logRelay stands in for the hardware relay when no pin is configured.
type logRelay struct{}

func (logRelay) SetConnected(connected bool) error {
	log.Infof("relay (disabled): connected=%v", connected)
	return nil
}

func openSource(args Args) (sensor.Source, error) {
	switch args.Source {
	case "mcp3008":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		return sensor.OpenMCP3008(args.SPIPort, sensor.DefaultADCChannels(), sensor.DefaultCalibration())
	case "serial":
		readTimeout := time.Duration(args.SampleSeconds*float64(time.Second)) / 2
		return sensor.OpenSerialBus(args.SerialPort, args.SerialBaud, readTimeout)
	case "sim":
		return sensor.NewSimulated(time.Now().UnixNano()), nil
	default:
		return nil, configErrorf("unknown sensor source %q", args.Source)
	}
}

func openRelay(args Args, initialConnected bool) (actuator.Port, error) {
	if args.RelayPin == "" || args.Source == "sim" {
		return logRelay{}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return actuator.OpenRelay(args.RelayPin, args.RelayActiveLow, initialConnected)
}

// Run is the real main. The entry point stays thin so the wiring can
// be exercised from tests.
func Run(inputArgs []string, ver string) error {
	version = ver
	log.SetFormatter(new(customFormatter))
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	setLogLevel(args.LogLevel)

	log.Infof("Running version: %s", version)

	cfg, err := args.Config()
	if err != nil {
		return err
	}

	source, err := openSource(args)
	if err != nil {
		return err
	}
	defer source.Close()

	// The relay is driven to the boot state before the first sample so
	// a crash loop cannot leave it floating.
	relay, err := openRelay(args, cfg.BootConnected)
	if err != nil {
		return err
	}

	events := eventlog.Multi{
		&eventlog.LogrusLog{Logger: log},
		&eventlog.FileLog{Path: args.EventCSV, MaxLines: 2000},
		&eventlog.Reporter{},
	}

	scorer, err := anomaly.NewForestScorer(cfg.Anomaly)
	if err != nil {
		return err
	}

	engine, err := NewEngine(
		cfg,
		source,
		relay,
		events,
		modelstore.NewFileStore(args.StateDir),
		scorer,
		loadBatteryConfig(args.ConfigDir),
	)
	if err != nil {
		return err
	}

	var sinks multiSink
	if args.ReadingCSV != "" {
		sinks = append(sinks, &tickLog{path: args.ReadingCSV, maxLines: 5000})
	}
	if args.MQTTBroker != "" {
		pub, err := NewPublisher(args.MQTTBroker, args.MQTTTopic)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	if len(sinks) > 0 {
		engine.SetStatusSink(sinks)
	}

	if err := startService(engine); err != nil {
		// Not fatal, manual override is just unavailable.
		log.Errorf("failed to start dbus service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		retrainer := &Retrainer{
			Engine:   engine,
			Interval: cfg.RetrainInterval,
			Events:   events,
		}
		retrainer.Run(ctx)
	}()

	events.Append(eventlog.Event{
		Timestamp: time.Now(),
		Severity:  eventlog.SeverityInfo,
		Type:      "monitoringStarted",
		Details:   map[string]interface{}{"version": version},
	})

	engine.Run(ctx)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("timed out waiting for retrainer to stop")
	}

	engine.Persist()
	log.Info("shut down, model state saved")
	return nil
}
