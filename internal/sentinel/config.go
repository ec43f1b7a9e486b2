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
	"errors"
	"fmt"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/safety"
)

// Args is the full flag surface. Thresholds and engine tuning are
// flags; the battery chemistry itself comes from the device config
// directory.
type Args struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	StateDir   string `arg:"--state-dir" help:"directory for persisted model state"`
	EventCSV   string `arg:"--event-csv" help:"CSV file for the local event log"`
	ReadingCSV string `arg:"--reading-csv" help:"CSV file for per-sample readings, empty to disable"`

	Source      string  `arg:"--source" help:"sensor source: mcp3008, serial or sim"`
	SPIPort     string  `arg:"--spi-port" help:"SPI port name, empty for the first available"`
	SerialPort  string  `arg:"--serial-port" help:"serial device for the RS485 sensor bus"`
	SerialBaud  int     `arg:"--serial-baud" help:"baud rate for the RS485 sensor bus"`
	RelayPin    string  `arg:"--relay-pin" help:"GPIO pin driving the battery relay, empty to disable"`
	RelayActiveLow bool `arg:"--relay-active-low" help:"drive the relay pin low to connect"`

	VoltRed    float64 `arg:"--volt-red" help:"voltage red limit in volts"`
	VoltYellow float64 `arg:"--volt-yellow" help:"voltage yellow limit in volts"`
	CurrentRed    float64 `arg:"--current-red" help:"current red limit in amps"`
	CurrentYellow float64 `arg:"--current-yellow" help:"current yellow limit in amps"`
	TempRed    float64 `arg:"--temp-red" help:"temperature red limit in celsius"`
	TempYellow float64 `arg:"--temp-yellow" help:"temperature yellow limit in celsius"`

	WindowSize      int     `arg:"--window-size" help:"rolling window size for yellow limit averaging"`
	HistorySize     int     `arg:"--history-size" help:"number of readings retained for model fitting"`
	SampleSeconds   float64 `arg:"--sample-rate" help:"sampling period in seconds"`
	RetrainSeconds  int     `arg:"--retrain-interval" help:"seconds between anomaly model refits"`
	AnomalyCutoff   float64 `arg:"--anomaly-cutoff" help:"normalised score above which a reading is an anomaly"`
	MaxReadFailures int     `arg:"--max-read-failures" help:"consecutive sensor failures before forcing disconnect"`
	BootDisconnected bool   `arg:"--boot-disconnected" help:"start with the battery disconnected"`

	NominalVoltage float64 `arg:"--nominal-voltage" help:"nominal pack voltage for health estimation"`

	MQTTBroker string `arg:"--mqtt-broker" help:"MQTT broker for status telemetry, empty to disable"`
	MQTTTopic  string `arg:"--mqtt-topic" help:"MQTT topic for status telemetry"`

	LogLevel string `arg:"-l,--log-level" help:"logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir:  goconfig.DefaultConfigDir,
	StateDir:   "/var/lib/bms-sentinel",
	EventCSV:   "/var/log/bms-sentinel-events.csv",
	ReadingCSV: "/var/log/bms-sentinel-readings.csv",
	Source:     "mcp3008",
	SerialPort: "/dev/serial0",
	SerialBaud: 9600,
	RelayPin:   "GPIO26",

	VoltRed:       14.5,
	VoltYellow:    14.0,
	CurrentRed:    4.5,
	CurrentYellow: 4.0,
	TempRed:       80.0,
	TempYellow:    70.0,

	WindowSize:      5,
	HistorySize:     5000,
	SampleSeconds:   1.0,
	RetrainSeconds:  3600,
	AnomalyCutoff:   0.8,
	MaxReadFailures: 5,

	NominalVoltage: 12.0,

	MQTTTopic: "bms-sentinel/status",
	LogLevel:  "info",
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs
	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

// ConfigError marks configuration the process must not start with.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

func configErrorf(format string, a ...interface{}) error {
	return &ConfigError{Reason: fmt.Sprintf(format, a...)}
}

// Config is the validated engine configuration.
type Config struct {
	Limits          safety.Limits
	WindowSize      int
	HistorySize     int
	SamplePeriod    time.Duration
	RetrainInterval time.Duration
	Anomaly         anomaly.Config
	NominalVoltage  float64
	SOHEvery        int
	MaxReadFailures int
	BootConnected   bool
}

func (a Args) limits() safety.Limits {
	return safety.Limits{
		Voltage:     safety.Limit{Yellow: a.VoltYellow, Red: a.VoltRed},
		Current:     safety.Limit{Yellow: a.CurrentYellow, Red: a.CurrentRed},
		Temperature: safety.Limit{Yellow: a.TempYellow, Red: a.TempRed},
	}
}

// Config builds and validates the engine configuration from the parsed
// arguments.
func (a Args) Config() (Config, error) {
	cfg := Config{
		Limits:          a.limits(),
		WindowSize:      a.WindowSize,
		HistorySize:     a.HistorySize,
		SamplePeriod:    time.Duration(a.SampleSeconds * float64(time.Second)),
		RetrainInterval: time.Duration(a.RetrainSeconds) * time.Second,
		NominalVoltage:  a.NominalVoltage,
		SOHEvery:        100,
		MaxReadFailures: a.MaxReadFailures,
		BootConnected:   !a.BootDisconnected,
	}
	cfg.Anomaly = anomaly.DefaultConfig()
	cfg.Anomaly.Cutoff = a.AnomalyCutoff
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	if c.WindowSize <= 0 {
		return configErrorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.HistorySize <= 0 {
		return configErrorf("history size must be positive, got %d", c.HistorySize)
	}
	if c.SamplePeriod <= 0 {
		return configErrorf("sample period must be positive, got %s", c.SamplePeriod)
	}
	if c.RetrainInterval <= 0 {
		return configErrorf("retrain interval must be positive, got %s", c.RetrainInterval)
	}
	if c.NominalVoltage <= 0 {
		return configErrorf("nominal voltage must be positive, got %v", c.NominalVoltage)
	}
	if c.SOHEvery <= 0 {
		return configErrorf("SOH update cadence must be positive, got %d", c.SOHEvery)
	}
	if c.MaxReadFailures <= 0 {
		return configErrorf("max read failures must be positive, got %d", c.MaxReadFailures)
	}
	if c.Anomaly.Cutoff <= 0 || c.Anomaly.Cutoff > 1 {
		return configErrorf("anomaly cutoff %v outside (0, 1]", c.Anomaly.Cutoff)
	}
	if c.HistorySize < c.Anomaly.FitMin {
		return configErrorf("history size %d below anomaly fit minimum %d", c.HistorySize, c.Anomaly.FitMin)
	}
	return nil
}

// loadBatteryConfig reads the battery section of the device config.
// A missing or unreadable config is not fatal; pack detection falls
// back to voltage-based auto-detection.
func loadBatteryConfig(configDir string) *goconfig.Battery {
	conf, err := goconfig.New(configDir)
	if err != nil {
		log.Debugf("no device config in %s: %v", configDir, err)
		return nil
	}
	battery := goconfig.DefaultBattery()
	if err := conf.Unmarshal(goconfig.BatteryKey, &battery); err != nil {
		log.Warnf("failed to load battery config: %v", err)
		return nil
	}
	return &battery
}
