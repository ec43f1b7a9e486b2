package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventString(t *testing.T) {
	e := Event{
		Type:     "redBreach",
		Severity: SeverityCritical,
		Details:  map[string]interface{}{"voltage": 14.6, "limit": 14.5},
	}
	assert.Equal(t, "redBreach limit=14.5 voltage=14.6", e.String())

	bare := Event{Type: "started"}
	assert.Equal(t, "started", bare.String())
}

func TestFileLogAppendsAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	f := &FileLog{Path: path, MaxLines: 5}

	for i := 0; i < 12; i++ {
		f.Append(Event{Timestamp: time.Now(), Severity: SeverityInfo, Type: "tick"})
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.LessOrEqual(t, len(lines), 7) // trimmed at every 5th append
	for _, line := range lines {
		assert.Contains(t, line, "tick")
	}
}

func TestTrimFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	content := "a\nb\nc\nd\ne\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, TrimFile(path, 2))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "d\ne\n", string(data))

	// Missing file is fine.
	assert.NoError(t, TrimFile(filepath.Join(t.TempDir(), "missing"), 2))
}

func TestMultiFansOut(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	m := Multi{a, b}
	m.Append(Event{Type: "disconnect"})

	assert.Equal(t, []string{"disconnect"}, a.Types())
	assert.Equal(t, []string{"disconnect"}, b.Types())
}
