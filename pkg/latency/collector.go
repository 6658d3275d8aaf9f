// Package latency measures scheduler wake-up jitter with a dedicated probe
// thread and keeps the measurements in a bounded statistical window.
package latency

import (
	"math"
	"sort"
	"sync"
)

// DefaultWindowSize is the sample window capacity used when none is given.
const DefaultWindowSize = 1000

// Collector is a bounded FIFO window of latency samples in milliseconds.
// It is safe for concurrent use from the probe thread and readers; the
// window is the only shared state and a single mutex guards it.
type Collector struct {
	mu       sync.Mutex
	capacity int
	samples  []float64
	// start indexes the oldest sample once the ring has wrapped.
	start int
	full  bool
}

// NewCollector returns a collector holding at most capacity samples.
// A capacity below 1 falls back to DefaultWindowSize.
func NewCollector(capacity int) *Collector {
	if capacity < 1 {
		capacity = DefaultWindowSize
	}
	return &Collector{
		capacity: capacity,
		samples:  make([]float64, 0, capacity),
	}
}

// AddSample appends one latency measurement. When the window is at capacity
// the oldest sample is evicted first.
func (c *Collector) AddSample(ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.full {
		c.samples = append(c.samples, ms)
		if len(c.samples) == c.capacity {
			c.full = true
		}
		return
	}
	c.samples[c.start] = ms
	c.start = (c.start + 1) % c.capacity
}

// Len returns the number of samples currently in the window.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Clear drops all samples.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = c.samples[:0]
	c.start = 0
	c.full = false
}

// Percentile computes the p-quantile of the current window.
//
// p must be a finite value in [0, 1] and at least two samples must be
// present; otherwise the second return value is false. p = 0 yields the
// minimum, p = 1 the maximum, anything in between the nearest-rank value
// at index ceil(n*p)-1 of the ascending-sorted window.
func (c *Collector) Percentile(p float64) (float64, bool) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		return 0, false
	}

	c.mu.Lock()
	sorted := append([]float64(nil), c.samples...)
	c.mu.Unlock()

	if len(sorted) < 2 {
		return 0, false
	}
	sort.Float64s(sorted)

	switch p {
	case 0:
		return sorted[0], true
	case 1:
		return sorted[len(sorted)-1], true
	}

	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx], true
}

// P95 is a convenience wrapper over Percentile(0.95).
func (c *Collector) P95() (float64, bool) { return c.Percentile(0.95) }

// P99 is a convenience wrapper over Percentile(0.99).
func (c *Collector) P99() (float64, bool) { return c.Percentile(0.99) }
