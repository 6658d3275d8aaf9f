// Package daemon runs the scheduling loop: sample processes, group them
// into apps, classify, actuate priorities and score responsiveness.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaSHuRiK/smoothtask/pkg/actuator"
	"github.com/SaSHuRiK/smoothtask/pkg/grouper"
	"github.com/SaSHuRiK/smoothtask/pkg/latency"
	"github.com/SaSHuRiK/smoothtask/pkg/policy"
	"github.com/SaSHuRiK/smoothtask/pkg/responsiveness"
	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/types"
)

// Sampler produces one ProcessRecord per live process.
type Sampler interface {
	Snapshot() ([]snapshot.ProcessRecord, error)
}

// Classifier assigns a priority class to every app group.
type Classifier interface {
	Evaluate(groups []snapshot.AppGroupRecord, procs []snapshot.ProcessRecord, ctx policy.Context) map[string]policy.Result
}

// Signals are the cycle-external inputs: PSI pressure, desktop audio and
// UI telemetry. All optional except UserActive.
type Signals struct {
	PSICPUSome10    *float64
	PSIIOSome10     *float64
	AudioXrunsDelta *uint64
	UILoopP95Ms     *float64
	UserActive      bool
}

// CycleResult is what one pass over the system produced.
type CycleResult struct {
	Processes      int
	Groups         []snapshot.AppGroupRecord
	Planned        int
	Apply          actuator.ApplyResult
	Responsiveness snapshot.ResponsivenessMetrics
}

// TotalRSS sums the resident-set totals across all groups. Groups with no
// RSS data contribute nothing.
func (r *CycleResult) TotalRSS() types.Bytes {
	var total types.Bytes
	for i := range r.Groups {
		if r.Groups[i].RSSBytes != nil {
			total += *r.Groups[i].RSSBytes
		}
	}
	return total
}

// Runtime owns the periodic cycle. Overlapping RunCycle calls serialize
// on an internal mutex so a slow cycle can never race a fast one.
type Runtime struct {
	sampler    Sampler
	classifier Classifier
	actuator   *actuator.Actuator
	collector  *latency.Collector
	evaluator  *responsiveness.Evaluator
	cache      *Cache
	log        *zap.Logger

	mu sync.Mutex
	// lastBad feeds the previous cycle's verdict into classification;
	// the noisy-neighbour rule always acts one cycle behind.
	lastBad bool
}

func NewRuntime(
	sampler Sampler,
	classifier Classifier,
	act *actuator.Actuator,
	collector *latency.Collector,
	evaluator *responsiveness.Evaluator,
	cache *Cache,
	log *zap.Logger,
) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		sampler:    sampler,
		classifier: classifier,
		actuator:   act,
		collector:  collector,
		evaluator:  evaluator,
		cache:      cache,
		log:        log,
	}
}

// RunCycle performs one sense-group-classify-actuate-evaluate pass.
func (r *Runtime) RunCycle(ctx context.Context, sig Signals) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.sampler.Snapshot()
	if err != nil {
		return nil, err
	}
	r.enrich(records)

	groups := grouper.Group(records)

	pctx := policy.Context{
		UserActive:      sig.UserActive,
		AudioXrunsDelta: sig.AudioXrunsDelta,
		BadResponse:     r.lastBad,
	}
	verdicts := r.classifier.Evaluate(groups, records, pctx)
	for i := range groups {
		if v, ok := verdicts[groups[i].ID]; ok {
			groups[i].PriorityClass = v.Class.String()
		}
	}

	plan := r.actuator.PlanChanges(records, groups, verdicts)
	applied := r.actuator.Apply(plan)

	activePids := make([]int, len(records))
	for i := range records {
		activePids[i] = records[i].PID
	}
	r.actuator.Cleanup(activePids)

	in := responsiveness.Inputs{
		PSICPUSome10:    sig.PSICPUSome10,
		PSIIOSome10:     sig.PSIIOSome10,
		AudioXrunsDelta: sig.AudioXrunsDelta,
		UILoopP95Ms:     sig.UILoopP95Ms,
	}
	if p95, ok := r.collector.P95(); ok {
		in.SchedLatencyP95Ms = snapshot.Float64(p95)
	}
	if p99, ok := r.collector.P99(); ok {
		in.SchedLatencyP99Ms = snapshot.Float64(p99)
	}
	metrics := r.evaluator.Evaluate(in)
	r.lastBad = metrics.BadResponsiveness

	result := &CycleResult{
		Processes:      len(records),
		Groups:         groups,
		Planned:        len(plan),
		Apply:          applied,
		Responsiveness: metrics,
	}
	r.log.Debug("cycle complete",
		zap.Int("processes", result.Processes),
		zap.Int("groups", len(result.Groups)),
		zap.Int("planned", result.Planned),
		zap.Int("applied", applied.Applied),
		zap.Int("skipped", applied.Skipped),
		zap.Int("errors", applied.Errors),
		zap.String("rss_total", result.TotalRSS().Humanized()),
		zap.Bool("bad_responsiveness", metrics.BadResponsiveness),
	)
	return result, nil
}

// Run cycles at the given interval until ctx is cancelled. signals is
// called once per cycle to pick up fresh external telemetry.
func (r *Runtime) Run(ctx context.Context, interval time.Duration, signals func() Signals) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunCycle(ctx, signals()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Error("cycle failed", zap.Error(err))
			}
		}
	}
}

// enrich backfills exe and cgroup paths that failed to read this cycle
// from the cache, and refreshes the cache with what did read.
func (r *Runtime) enrich(records []snapshot.ProcessRecord) {
	if r.cache == nil {
		return
	}
	for i := range records {
		rec := &records[i]
		if rec.Exe == "" || rec.CgroupPath == "" {
			exe, cgroup, ok := r.cache.Lookup(rec.PID)
			if ok {
				if rec.Exe == "" {
					rec.Exe = exe
				}
				if rec.CgroupPath == "" {
					rec.CgroupPath = cgroup
				}
			}
		}
		r.cache.Remember(rec.PID, rec.Exe, rec.CgroupPath)
	}
}
