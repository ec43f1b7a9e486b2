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

// Package window implements the fixed-size rolling windows used to
// smooth sensor noise before the yellow-tier limit checks.
package window

import "github.com/packwatch/bms-sentinel/reading"

// Window is a fixed-capacity FIFO of sample values. Pushing to a full
// window silently evicts the oldest value. The average is only defined
// once the window has filled.
type Window struct {
	capacity int
	values   []float64
}

func New(capacity int) *Window {
	return &Window{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push appends a value, evicting the oldest if the window is full.
func (w *Window) Push(v float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.capacity-1]
	}
	w.values = append(w.values, v)
}

func (w *Window) Len() int {
	return len(w.values)
}

func (w *Window) Full() bool {
	return len(w.values) == w.capacity
}

// Average returns the windowed mean. ok is false until the window has
// filled, before that the average is not meaningful for limit checks.
func (w *Window) Average() (avg float64, ok bool) {
	if !w.Full() {
		return 0, false
	}
	sum := 0.0
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values)), true
}

// Filter holds one independent window per sensor channel.
type Filter struct {
	windows map[reading.Channel]*Window
}

func NewFilter(capacity int) *Filter {
	f := &Filter{windows: make(map[reading.Channel]*Window)}
	for _, ch := range reading.Channels {
		f.windows[ch] = New(capacity)
	}
	return f
}

// Push folds a full reading into the per-channel windows.
func (f *Filter) Push(r reading.Reading) {
	for ch, w := range f.windows {
		w.Push(r.Value(ch))
	}
}

func (f *Filter) Average(ch reading.Channel) (float64, bool) {
	return f.windows[ch].Average()
}

// Full reports whether every channel window has filled.
func (f *Filter) Full() bool {
	for _, w := range f.windows {
		if !w.Full() {
			return false
		}
	}
	return true
}
