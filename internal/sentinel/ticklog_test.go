package sentinel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickLogAppendsAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	tl := &tickLog{path: path, maxLines: 3}

	s := Status{
		Time:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Voltage:     12.512,
		Current:     2.001,
		Temperature: 35.2,
		SOC:         81,
		SOH:         99.9,
		Connected:   true,
	}
	// Six publishes with maxLines 3 crosses the trim threshold twice.
	for i := 0; i < 6; i++ {
		tl.Publish(s)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "2025-06-01 12:00:00, 12.512, 2.001, 35.20, 81.0, 99.90, true")
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multiSink{a, b}.Publish(Status{Voltage: 12.5})
	require.Len(t, a.statuses, 1)
	require.Len(t, b.statuses, 1)
	assert.Equal(t, 12.5, b.statuses[0].Voltage)
}
