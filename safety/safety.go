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

// Package safety applies the two-tier limit scheme to sensor readings.
// Red limits are damaging levels and are checked against the raw reading
// every tick. Yellow limits are undesired-but-tolerable levels and are
// only checked against the rolling average, so a single noisy sample
// can't trip them.
package safety

import (
	"fmt"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/packwatch/bms-sentinel/window"
)

// Tier is the severity of a limit breach.
type Tier string

const (
	TierRed    Tier = "red"
	TierYellow Tier = "yellow"
)

// Limit is the yellow/red threshold pair for one channel. Red must sit
// above yellow; a red breach disconnects immediately while a yellow
// breach only acts on the windowed average.
type Limit struct {
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}

// Limits holds the threshold pairs for all channels.
type Limits struct {
	Voltage     Limit `json:"voltage"`
	Current     Limit `json:"current"`
	Temperature Limit `json:"temperature"`
}

func (l Limits) limit(ch reading.Channel) Limit {
	switch ch {
	case reading.Voltage:
		return l.Voltage
	case reading.Current:
		return l.Current
	}
	return l.Temperature
}

// Validate checks the limit ordering. A red limit at or below its
// yellow limit would make the instantaneous check fire before the
// averaged one ever could, so it is rejected outright.
func (l Limits) Validate() error {
	for _, ch := range reading.Channels {
		lim := l.limit(ch)
		if lim.Red <= lim.Yellow {
			return fmt.Errorf("%s limits: red (%v) must be above yellow (%v)", ch, lim.Red, lim.Yellow)
		}
	}
	return nil
}

// Breach describes one channel exceeding a limit.
type Breach struct {
	Channel  reading.Channel `json:"channel"`
	Tier     Tier            `json:"tier"`
	Value    float64         `json:"value"`
	Limit    float64         `json:"limit"`
	Averaged bool            `json:"averaged"`
}

func (b Breach) String() string {
	kind := "reading"
	if b.Averaged {
		kind = "average"
	}
	return fmt.Sprintf("%s %s %s %.3f over limit %.3f", b.Channel, b.Tier, kind, b.Value, b.Limit)
}

// Verdict is the outcome of evaluating one reading.
type Verdict struct {
	OK       bool     `json:"ok"`
	Breaches []Breach `json:"breaches,omitempty"`
}

// Tier returns the worst tier present in the verdict, or "" if safe.
func (v Verdict) Tier() Tier {
	tier := Tier("")
	for _, b := range v.Breaches {
		if b.Tier == TierRed {
			return TierRed
		}
		tier = b.Tier
	}
	return tier
}

// Evaluator applies red then yellow limit checks, owning the rolling
// windows that back the yellow tier.
type Evaluator struct {
	limits Limits
	filter *window.Filter
}

// NewEvaluator validates the limits and window size. Invalid
// configuration here is fatal at startup, never discovered mid-run.
func NewEvaluator(limits Limits, windowSize int) (*Evaluator, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	return &Evaluator{
		limits: limits,
		filter: window.NewFilter(windowSize),
	}, nil
}

// Evaluate checks one reading against the limits.
//
// Raw values are compared to the red limits first. A red breach returns
// immediately without touching the windows: an instantaneous excursion
// at that level can damage hardware, so it must not be smoothed away.
// Only a red-clean reading is folded into the windows, and yellow
// limits are then checked against the averages once every window has
// filled. For the first windowSize-1 ticks only the red tier can fire.
func (e *Evaluator) Evaluate(r reading.Reading) Verdict {
	var breaches []Breach
	for _, ch := range reading.Channels {
		lim := e.limits.limit(ch)
		if v := r.Value(ch); v > lim.Red {
			breaches = append(breaches, Breach{
				Channel: ch,
				Tier:    TierRed,
				Value:   v,
				Limit:   lim.Red,
			})
		}
	}
	if len(breaches) > 0 {
		return Verdict{OK: false, Breaches: breaches}
	}

	e.filter.Push(r)
	if !e.filter.Full() {
		return Verdict{OK: true}
	}

	for _, ch := range reading.Channels {
		avg, ok := e.filter.Average(ch)
		if !ok {
			continue
		}
		if lim := e.limits.limit(ch); avg > lim.Yellow {
			breaches = append(breaches, Breach{
				Channel:  ch,
				Tier:     TierYellow,
				Value:    avg,
				Limit:    lim.Yellow,
				Averaged: true,
			})
		}
	}
	return Verdict{OK: len(breaches) == 0, Breaches: breaches}
}
