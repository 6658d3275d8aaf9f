package responsiveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
)

func TestEvaluate_NoSignalsIsOptimistic(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	m := e.Evaluate(Inputs{})

	assert.False(t, m.BadResponsiveness)
	require.NotNil(t, m.Score)
	assert.Equal(t, 1.0, *m.Score)
}

func TestEvaluate_BadFlag(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	tests := map[string]Inputs{
		"cpu pressure":    {PSICPUSome10: snapshot.Float64(0.7)},
		"io pressure":     {PSIIOSome10: snapshot.Float64(0.5)},
		"sched latency":   {SchedLatencyP99Ms: snapshot.Float64(25.0)},
		"audio xruns":     {AudioXrunsDelta: snapshot.Uint64(3)},
		"ui loop latency": {UILoopP95Ms: snapshot.Float64(30.0)},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			assert.True(t, e.Evaluate(in).BadResponsiveness)
		})
	}
}

func TestEvaluate_WithinThresholdsIsGood(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	m := e.Evaluate(Inputs{
		PSICPUSome10:      snapshot.Float64(0.1),
		PSIIOSome10:       snapshot.Float64(0.05),
		SchedLatencyP99Ms: snapshot.Float64(5.0),
		AudioXrunsDelta:   snapshot.Uint64(0),
		UILoopP95Ms:       snapshot.Float64(8.0),
	})

	assert.False(t, m.BadResponsiveness)
	require.NotNil(t, m.Score)
	assert.Greater(t, *m.Score, 0.5)
}

func TestEvaluate_ScoreDegradesWithPressure(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	light := e.Evaluate(Inputs{PSICPUSome10: snapshot.Float64(0.1)})
	heavy := e.Evaluate(Inputs{PSICPUSome10: snapshot.Float64(0.9)})

	require.NotNil(t, light.Score)
	require.NotNil(t, heavy.Score)
	assert.Greater(t, *light.Score, *heavy.Score)
}

func TestEvaluate_ScoreBounds(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	// Everything far past its threshold must still land in [0,1].
	m := e.Evaluate(Inputs{
		PSICPUSome10:      snapshot.Float64(1.0),
		PSIIOSome10:       snapshot.Float64(1.0),
		SchedLatencyP99Ms: snapshot.Float64(500.0),
		AudioXrunsDelta:   snapshot.Uint64(100),
		UILoopP95Ms:       snapshot.Float64(500.0),
	})
	require.NotNil(t, m.Score)
	assert.GreaterOrEqual(t, *m.Score, 0.0)
	assert.LessOrEqual(t, *m.Score, 1.0)
	assert.True(t, m.BadResponsiveness)
	assert.Equal(t, 0.0, *m.Score)
}

func TestEvaluate_SingleSignalScore(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	// One signal exactly at its threshold normalizes to 1.0, so the
	// score collapses to zero regardless of weight.
	m := e.Evaluate(Inputs{SchedLatencyP99Ms: snapshot.Float64(20.0)})
	require.NotNil(t, m.Score)
	assert.InDelta(t, 0.0, *m.Score, 1e-9)
	assert.False(t, m.BadResponsiveness, "exactly at threshold is not yet bad")
}

func TestEvaluate_CarriesInputsThrough(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	in := Inputs{
		SchedLatencyP95Ms: snapshot.Float64(3.0),
		SchedLatencyP99Ms: snapshot.Float64(9.0),
		AudioXrunsDelta:   snapshot.Uint64(0),
		UILoopP95Ms:       snapshot.Float64(4.0),
	}
	m := e.Evaluate(in)
	assert.Equal(t, in.SchedLatencyP95Ms, m.SchedLatencyP95Ms)
	assert.Equal(t, in.SchedLatencyP99Ms, m.SchedLatencyP99Ms)
	assert.Equal(t, in.AudioXrunsDelta, m.AudioXrunsDelta)
	assert.Equal(t, in.UILoopP95Ms, m.UILoopP95Ms)
}
