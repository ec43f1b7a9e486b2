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

// Package anomaly scores sensor readings against an unsupervised model
// of recent battery behaviour. The decision engine treats the scorer as
// a capability: anything that can refit from history and score a
// reading will do. The shipped implementation standardises features and
// runs them through an isolation forest.
package anomaly

import (
	"errors"
	"fmt"
	"sync"

	"github.com/packwatch/bms-sentinel/reading"
)

// ParamsVersion is the schema version of persisted scorer parameters.
const ParamsVersion = 1

// ErrInsufficientHistory is returned by Fit when there is not yet
// enough history to train from.
var ErrInsufficientHistory = errors.New("not enough history to fit anomaly model")

// Result is a normalised anomaly verdict for one reading.
type Result struct {
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// Scorer is the pluggable outlier-scoring capability. Fit refits the
// model from accumulated history; Score rates a single reading. Both
// must be safe to call concurrently with each other.
type Scorer interface {
	Fit(hist []reading.Reading) error
	Score(r reading.Reading) Result
}

// Config tunes the forest scorer.
type Config struct {
	// WarmupSize is how many readings must have been seen before
	// Score produces anything other than the default (0, false).
	WarmupSize int
	// FitMin is the minimum history length Fit will train from.
	FitMin int
	// Cutoff is the normalised score above which a reading is flagged.
	Cutoff float64
	// Trees and SampleSize control forest construction.
	Trees      int
	SampleSize int
	Seed       int64
}

func DefaultConfig() Config {
	return Config{
		WarmupSize: 10,
		FitMin:     100,
		Cutoff:     0.8,
		Trees:      100,
		SampleSize: 256,
		Seed:       42,
	}
}

func (c Config) validate() error {
	if c.WarmupSize < 0 || c.FitMin <= 0 || c.Trees <= 0 || c.SampleSize <= 0 {
		return fmt.Errorf("anomaly config: sizes must be positive")
	}
	if c.Cutoff <= 0 || c.Cutoff > 1 {
		return fmt.Errorf("anomaly config: cutoff %v outside (0, 1]", c.Cutoff)
	}
	return nil
}

// ForestScorer scores readings with a standard scaler and an isolation
// forest. The fitted state (scaler + forest) is swapped as a unit under
// the mutex, never mutated in place, so the sampling loop can keep
// scoring while a background refit runs.
type ForestScorer struct {
	cfg Config

	mu     sync.RWMutex
	scaler *Scaler
	forest *Forest
	seen   int
}

func NewForestScorer(cfg Config) (*ForestScorer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ForestScorer{cfg: cfg}, nil
}

// Fit trains a fresh scaler and forest from the history and swaps them
// in atomically. The previous fit keeps serving Score calls until the
// swap. Returns ErrInsufficientHistory below the fit minimum.
func (s *ForestScorer) Fit(hist []reading.Reading) error {
	if len(hist) < s.cfg.FitMin {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientHistory, len(hist), s.cfg.FitMin)
	}

	rows := make([][]float64, len(hist))
	for i, r := range hist {
		rows[i] = r.Features()
	}
	scaler := FitScaler(rows)
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = scaler.Transform(row)
	}
	forest := FitForest(scaled, s.cfg.Trees, s.cfg.SampleSize, s.cfg.Seed)

	s.mu.Lock()
	s.scaler = scaler
	s.forest = forest
	s.mu.Unlock()
	return nil
}

// Score rates one reading. Until the warm-up count of readings has been
// seen, or while no fitted model exists, it returns the default
// non-anomalous result.
//
// The forest's isolation score sits near 0.5 for typical points and
// approaches 1 for outliers; the fixed affine map 2s-0.5 (clamped to
// [0, 1]) spreads that upper range so the configured cutoff is
// meaningful.
func (s *ForestScorer) Score(r reading.Reading) Result {
	s.mu.Lock()
	s.seen++
	seen := s.seen
	scaler, forest := s.scaler, s.forest
	s.mu.Unlock()

	if seen <= s.cfg.WarmupSize || forest == nil || scaler == nil {
		return Result{}
	}

	raw := forest.Score(scaler.Transform(r.Features()))
	score := 2*raw - 0.5
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return Result{Score: score, IsAnomaly: score > s.cfg.Cutoff}
}

// Fitted reports whether a trained model is in place.
func (s *ForestScorer) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forest != nil
}

// Params is the versioned parameter set of a fitted scorer, the schema
// the model store persists.
type Params struct {
	Version int           `json:"version"`
	Scaler  *ScalerParams `json:"scaler,omitempty"`
	Forest  *ForestParams `json:"forest,omitempty"`
}

// Params returns the current fitted parameters, or nil if unfitted.
func (s *ForestScorer) Params() *Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forest == nil || s.scaler == nil {
		return nil
	}
	sp := s.scaler.Params()
	fp := s.forest.Params()
	return &Params{Version: ParamsVersion, Scaler: &sp, Forest: &fp}
}

// Restore installs persisted parameters as the fitted state. The
// warm-up counter is unaffected: a freshly started process still waits
// for warm-up before scoring, matching cold-start behaviour.
func (s *ForestScorer) Restore(p *Params) error {
	if p == nil {
		return nil
	}
	if p.Version != ParamsVersion {
		return fmt.Errorf("unsupported scorer params version %d", p.Version)
	}
	if p.Scaler == nil || p.Forest == nil {
		return errors.New("scorer params missing scaler or forest")
	}
	scaler, err := ScalerFromParams(*p.Scaler)
	if err != nil {
		return err
	}
	forest, err := ForestFromParams(*p.Forest)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.scaler = scaler
	s.forest = forest
	s.mu.Unlock()
	return nil
}
