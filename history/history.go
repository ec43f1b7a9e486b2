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

// Package history keeps the bounded buffer of past readings that feeds
// health estimation and background model refits.
package history

import (
	"sync"

	"github.com/packwatch/bms-sentinel/reading"
)

// Buffer is a fixed-capacity ring of Readings. The sampling loop
// appends; the health estimator and retrainer only ever see copied
// snapshots, so a refit can run while sampling continues.
type Buffer struct {
	mu    sync.Mutex
	data  []reading.Reading
	start int
	n     int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]reading.Reading, capacity)}
}

// Append adds a reading, evicting the oldest if the buffer is full.
func (b *Buffer) Append(r reading.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n < len(b.data) {
		b.data[(b.start+b.n)%len(b.data)] = r
		b.n++
		return
	}
	b.data[b.start] = r
	b.start = (b.start + 1) % len(b.data)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Snapshot returns a copy of the buffer contents, oldest first. The
// copy is safe to read while the sampling loop keeps appending.
func (b *Buffer) Snapshot() []reading.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]reading.Reading, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Tail returns a copy of the most recent n readings, oldest first.
func (b *Buffer) Tail(n int) []reading.Reading {
	snap := b.Snapshot()
	if n >= len(snap) {
		return snap
	}
	return snap[len(snap)-n:]
}
