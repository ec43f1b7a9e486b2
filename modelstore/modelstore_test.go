package modelstore

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedParams(t *testing.T) *anomaly.Params {
	t.Helper()
	scorer, err := anomaly.NewForestScorer(anomaly.DefaultConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	hist := make([]reading.Reading, 150)
	for i := range hist {
		hist[i] = reading.Reading{
			Voltage:     12.5 + rng.NormFloat64()*0.1,
			Current:     2.0 + rng.NormFloat64()*0.2,
			Temperature: 35.0 + rng.NormFloat64()*1.5,
		}
	}
	require.NoError(t, scorer.Fit(hist))
	return scorer.Params()
}

func TestColdStartReturnsNil(t *testing.T) {
	store := NewFileStore(t.TempDir())
	snap, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	params := fittedParams(t)
	require.NoError(t, store.Save(&Snapshot{SOH: 87.25, Scorer: params}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 87.25, loaded.SOH)
	assert.Equal(t, SnapshotVersion, loaded.Version)
	require.NotNil(t, loaded.Scorer)
	assert.Equal(t, params.Scaler, loaded.Scorer.Scaler)
	assert.Equal(t, params.Forest.SampleSize, loaded.Scorer.Forest.SampleSize)
	assert.Equal(t, params.Forest.Trees, loaded.Scorer.Forest.Trees)

	// The restored params must produce a working scorer.
	restored, err := anomaly.NewForestScorer(anomaly.DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, restored.Restore(loaded.Scorer))
	assert.True(t, restored.Fitted())
}

func TestCorruptSnapshotIsAnError(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_state.json"), []byte("{not json"), 0644))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestWrongVersionRejected(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_state.json"), []byte(`{"version": 99}`), 0644))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestSaveCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	store := NewFileStore(dir)
	require.NoError(t, store.Save(&Snapshot{SOH: 100}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 100.0, loaded.SOH)
}
