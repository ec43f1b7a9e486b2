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

// Package modelstore persists the fitted anomaly model and SOH between
// runs.
package modelstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/packwatch/bms-sentinel/anomaly"
)

const (
	// SnapshotVersion is bumped whenever the on-disk schema changes.
	SnapshotVersion  = 1
	snapshotFileName = "model_state.json"
)

// Snapshot is the persisted state: the explicit scorer parameters and
// the SOH scalar, versioned so a future schema change can be detected
// rather than misread.
type Snapshot struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	SOH     float64         `json:"soh"`
	Scorer  *anomaly.Params `json:"scorer,omitempty"`
}

// Store loads and saves model snapshots. A missing snapshot on first
// run is not an error; Load returns (nil, nil).
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// FileStore keeps the snapshot as a JSON file in a state directory.
type FileStore struct {
	path string
}

func NewFileStore(stateDir string) *FileStore {
	return &FileStore{path: filepath.Join(stateDir, snapshotFileName)}
}

func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading model snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing model snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported model snapshot version %d", snap.Version)
	}
	return &snap, nil
}

// Save writes the snapshot via a temp file and rename so a crash
// mid-write can't leave a truncated snapshot behind.
func (s *FileStore) Save(snap *Snapshot) error {
	snap.Version = SnapshotVersion
	snap.SavedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing model snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}
