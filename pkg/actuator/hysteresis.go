package actuator

import (
	"time"

	"github.com/SaSHuRiK/smoothtask/pkg/policy"
)

const (
	// DefaultMinChangeInterval is the minimum time between two priority
	// changes of the same PID.
	DefaultMinChangeInterval = 5 * time.Second
	// DefaultMinRankDistance is the minimum class-rank distance from the
	// last applied class for a new change to go through.
	DefaultMinRankDistance = 1
)

type changeRecord struct {
	at    time.Time
	class policy.PriorityClass
}

// Hysteresis suppresses priority flapping: a PID that was just adjusted
// is left alone for a while, and tiny class oscillations are ignored.
// Not safe for concurrent use; the cycle runner serializes access.
type Hysteresis struct {
	history     map[int]changeRecord
	minInterval time.Duration
	minRankDist int

	now func() time.Time
}

func NewHysteresis(minInterval time.Duration, minRankDist int) *Hysteresis {
	if minInterval <= 0 {
		minInterval = DefaultMinChangeInterval
	}
	if minRankDist <= 0 {
		minRankDist = DefaultMinRankDistance
	}
	return &Hysteresis{
		history:     make(map[int]changeRecord),
		minInterval: minInterval,
		minRankDist: minRankDist,
		now:         time.Now,
	}
}

// ShouldApply reports whether a change of pid to class is allowed now.
// A PID with no history is always allowed.
func (h *Hysteresis) ShouldApply(pid int, class policy.PriorityClass) bool {
	rec, ok := h.history[pid]
	if !ok {
		return true
	}
	if h.now().Sub(rec.at) < h.minInterval {
		return false
	}
	dist := rec.class.Rank() - class.Rank()
	if dist < 0 {
		dist = -dist
	}
	return dist >= h.minRankDist
}

// Record notes that pid was just moved to class.
func (h *Hysteresis) Record(pid int, class policy.PriorityClass) {
	h.history[pid] = changeRecord{at: h.now(), class: class}
}

// Cleanup drops history for PIDs not in activePids, so entries of exited
// processes do not accumulate (or shadow a recycled PID).
func (h *Hysteresis) Cleanup(activePids []int) {
	active := make(map[int]struct{}, len(activePids))
	for _, pid := range activePids {
		active[pid] = struct{}{}
	}
	for pid := range h.history {
		if _, ok := active[pid]; !ok {
			delete(h.history, pid)
		}
	}
}
