package latency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultProbeInterval is the nominal probe sleep. 5ms keeps cancellation
// latency low while still catching multi-millisecond scheduler stalls.
const DefaultProbeInterval = 5 * time.Millisecond

// Probe runs a mini-cyclictest: a dedicated OS thread repeatedly sleeps for
// a fixed interval and records how much longer the wake-up actually took.
// The overshoot is ground-truth evidence of scheduler jitter that needs no
// kernel tracing support.
//
// The probe runs for the daemon's lifetime, decoupled from the sampling
// cycle cadence. Callers should pair Start with a deferred Stop.
type Probe struct {
	collector *Collector
	interval  time.Duration
	log       *zap.Logger

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProbe wires a probe to the given collector. A non-positive interval
// falls back to DefaultProbeInterval; a nil logger is replaced by a no-op.
func NewProbe(collector *Collector, interval time.Duration, log *zap.Logger) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{
		collector: collector,
		interval:  interval,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the probe thread. Subsequent calls are no-ops.
func (p *Probe) Start() {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.run()
	})
}

// Stop requests cancellation and waits for the probe thread to exit.
// The stop flag is checked once per loop iteration, so joining takes at
// most roughly one probe interval. Stop is idempotent and a no-op for a
// probe that was never started.
func (p *Probe) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	if p.started.Load() {
		<-p.done
	}
}

// Interval returns the nominal sleep interval.
func (p *Probe) Interval() time.Duration { return p.interval }

func (p *Probe) run() {
	defer close(p.done)

	// Pin to one OS thread: the measurement is about how quickly the
	// kernel reschedules this thread, not a goroutine migration artifact.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.log.Debug("latency probe started",
		zap.Duration("interval", p.interval),
		zap.Int("window", p.collector.capacity))

	for {
		select {
		case <-p.stop:
			p.log.Debug("latency probe stopped")
			return
		default:
		}

		before := time.Now()
		time.Sleep(p.interval)
		overshoot := time.Since(before) - p.interval

		// Early wake-ups are clamped: the window holds latency, never
		// negative time.
		ms := float64(overshoot) / float64(time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		p.collector.AddSample(ms)
	}
}
