package history

import (
	"testing"

	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndEvict(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 3; i++ {
		b.Append(reading.Reading{Voltage: float64(i)})
	}
	assert.Equal(t, 3, b.Len())

	b.Append(reading.Reading{Voltage: 4})
	assert.Equal(t, 3, b.Len())

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 2.0, snap[0].Voltage)
	assert.Equal(t, 4.0, snap[2].Voltage)
}

func TestSnapshotIsACopy(t *testing.T) {
	b := NewBuffer(2)
	b.Append(reading.Reading{Voltage: 1})
	snap := b.Snapshot()
	b.Append(reading.Reading{Voltage: 2})
	b.Append(reading.Reading{Voltage: 3})

	require.Len(t, snap, 1)
	assert.Equal(t, 1.0, snap[0].Voltage)
}

func TestTail(t *testing.T) {
	b := NewBuffer(10)
	for i := 1; i <= 5; i++ {
		b.Append(reading.Reading{Voltage: float64(i)})
	}

	tail := b.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, 4.0, tail[0].Voltage)
	assert.Equal(t, 5.0, tail[1].Voltage)

	assert.Len(t, b.Tail(100), 5)
}
