// Package responsiveness turns raw pressure and latency signals into a
// single verdict: is interactivity suffering, and how much.
package responsiveness

import (
	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
)

// Thresholds are the per-signal "this hurts" limits.
type Thresholds struct {
	PSICPUSomeHigh    float64 // fraction of time some tasks were CPU-starved (avg10)
	PSIIOSomeHigh     float64
	SchedLatencyP99Ms float64
	UILoopP95Ms       float64
}

// DefaultThresholds returns the stock limits: moderate CPU pressure, a
// 20ms scheduling tail and one missed 60Hz frame for the UI loop.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PSICPUSomeHigh:    0.6,
		PSIIOSomeHigh:     0.4,
		SchedLatencyP99Ms: 20.0,
		UILoopP95Ms:       16.67,
	}
}

// Inputs are the signals of one cycle. Every field is optional; an
// absent signal neither helps nor hurts the verdict.
type Inputs struct {
	PSICPUSome10 *float64
	PSIIOSome10  *float64

	SchedLatencyP95Ms *float64
	SchedLatencyP99Ms *float64
	AudioXrunsDelta   *uint64
	UILoopP95Ms       *float64
}

// Evaluator scores interactivity against fixed thresholds.
type Evaluator struct {
	thresholds Thresholds
}

func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate computes the responsiveness record for one cycle.
//
// BadResponsiveness is the OR over all available signals exceeding their
// threshold. The score is a weighted blend of the same signals
// normalized against their thresholds (capped at 2x so one runaway
// signal cannot drown the rest); with zero available signals the score
// is an optimistic 1.0.
func (e *Evaluator) Evaluate(in Inputs) snapshot.ResponsivenessMetrics {
	t := e.thresholds
	out := snapshot.ResponsivenessMetrics{
		SchedLatencyP95Ms: in.SchedLatencyP95Ms,
		SchedLatencyP99Ms: in.SchedLatencyP99Ms,
		AudioXrunsDelta:   in.AudioXrunsDelta,
		UILoopP95Ms:       in.UILoopP95Ms,
	}

	bad := false
	if in.PSICPUSome10 != nil && *in.PSICPUSome10 > t.PSICPUSomeHigh {
		bad = true
	}
	if in.PSIIOSome10 != nil && *in.PSIIOSome10 > t.PSIIOSomeHigh {
		bad = true
	}
	if in.SchedLatencyP99Ms != nil && *in.SchedLatencyP99Ms > t.SchedLatencyP99Ms {
		bad = true
	}
	if in.AudioXrunsDelta != nil && *in.AudioXrunsDelta > 0 {
		bad = true
	}
	if in.UILoopP95Ms != nil && *in.UILoopP95Ms > t.UILoopP95Ms {
		bad = true
	}
	out.BadResponsiveness = bad

	var problem, weightSum float64
	addRatio := func(observed, threshold, weight float64) {
		normalized := observed / threshold
		if normalized > 2.0 {
			normalized = 2.0
		}
		problem += normalized * weight
		weightSum += weight
	}

	if in.PSICPUSome10 != nil {
		addRatio(*in.PSICPUSome10, t.PSICPUSomeHigh, 0.3)
	}
	if in.PSIIOSome10 != nil {
		addRatio(*in.PSIIOSome10, t.PSIIOSomeHigh, 0.2)
	}
	if in.SchedLatencyP99Ms != nil {
		addRatio(*in.SchedLatencyP99Ms, t.SchedLatencyP99Ms, 0.3)
	}
	if in.AudioXrunsDelta != nil {
		// Binary contribution: any xrun at all is a full hit.
		if *in.AudioXrunsDelta > 0 {
			problem += 1.0 * 0.1
		}
		weightSum += 0.1
	}
	if in.UILoopP95Ms != nil {
		addRatio(*in.UILoopP95Ms, t.UILoopP95Ms, 0.1)
	}

	score := 1.0
	if weightSum > 0 {
		normalized := problem / weightSum
		if normalized > 1.0 {
			normalized = 1.0
		}
		score = 1.0 - normalized
		if score < 0 {
			score = 0
		}
	}
	out.Score = snapshot.Float64(score)
	return out
}
