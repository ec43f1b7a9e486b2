package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/packwatch/bms-sentinel/anomaly"
	"github.com/packwatch/bms-sentinel/eventlog"
	"github.com/packwatch/bms-sentinel/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retrainHarness(t *testing.T, scorer *flatScorer) (*Engine, *eventlog.Recorder) {
	src := &scriptedSource{readings: []reading.Reading{nominal(time.Now())}}
	h := newHarness(t, testConfig(), src)
	h.engine.scorer = scorer
	return h.engine, h.events
}

func TestRetrainOnInterval(t *testing.T) {
	scorer := &flatScorer{}
	engine, events := retrainHarness(t, scorer)
	for i := 0; i < 200; i++ {
		engine.Tick()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Retrainer{Engine: engine, Interval: 10 * time.Millisecond, Events: events}
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return scorer.fits() >= 2
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, events.Types(), "modelRetrained")
}

func TestRetrainSkipsThinHistory(t *testing.T) {
	scorer := &flatScorer{fitErr: anomaly.ErrInsufficientHistory}
	engine, events := retrainHarness(t, scorer)
	engine.Tick()

	rt := &Retrainer{Engine: engine, Interval: time.Hour, Events: events}
	rt.retrain()

	// A skip is silent, not a failure.
	assert.NotContains(t, events.Types(), "modelRetrainFailed")
	assert.NotContains(t, events.Types(), "modelRetrained")
}

func TestRetrainFailureKeepsServing(t *testing.T) {
	scorer := &flatScorer{fitErr: errors.New("degenerate feature matrix")}
	engine, events := retrainHarness(t, scorer)
	for i := 0; i < 150; i++ {
		engine.Tick()
	}

	rt := &Retrainer{Engine: engine, Interval: time.Hour, Events: events}
	rt.retrain()

	assert.Contains(t, events.Types(), "modelRetrainFailed")
	// The engine keeps scoring on whatever fit it has.
	engine.Tick()
	assert.True(t, engine.Connected())
}

func TestCancellationIsPrompt(t *testing.T) {
	scorer := &flatScorer{}
	engine, events := retrainHarness(t, scorer)

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Retrainer{Engine: engine, Interval: time.Hour, Events: events}
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retrainer did not stop on cancellation")
	}
	assert.Zero(t, scorer.fits())
}
