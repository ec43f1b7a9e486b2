package sentinel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultArgsProduceValidConfig(t *testing.T) {
	args, err := procArgs(nil)
	require.NoError(t, err)

	cfg, err := args.Config()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SamplePeriod)
	assert.Equal(t, time.Hour, cfg.RetrainInterval)
	assert.Equal(t, 5, cfg.WindowSize)
	assert.Equal(t, 0.8, cfg.Anomaly.Cutoff)
	assert.True(t, cfg.BootConnected)
}

func TestArgOverrides(t *testing.T) {
	args, err := procArgs([]string{
		"--volt-red", "15.0",
		"--sample-rate", "0.5",
		"--boot-disconnected",
	})
	require.NoError(t, err)

	cfg, err := args.Config()
	require.NoError(t, err)
	assert.Equal(t, 15.0, cfg.Limits.Voltage.Red)
	assert.Equal(t, 500*time.Millisecond, cfg.SamplePeriod)
	assert.False(t, cfg.BootConnected)
}

func TestInvertedLimitsRejected(t *testing.T) {
	args, err := procArgs([]string{"--volt-red", "13.0"})
	require.NoError(t, err)

	_, err = args.Config()
	require.Error(t, err)
	var confErr *ConfigError
	assert.ErrorAs(t, err, &confErr)
}

func TestConfigValidation(t *testing.T) {
	base := testConfig()

	cfg := base
	cfg.SamplePeriod = 0
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.WindowSize = -1
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Anomaly.Cutoff = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.HistorySize = cfg.Anomaly.FitMin - 1
	assert.Error(t, cfg.Validate())

	assert.NoError(t, base.Validate())
}
