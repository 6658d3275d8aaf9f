// Package actuator turns policy verdicts into kernel state: nice,
// latency nice, IO priority and cgroup cpu.weight.
package actuator

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/SaSHuRiK/smoothtask/pkg/policy"
	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/system/cgroup"
)

// Adjustment is one planned change for one PID. Current values are kept
// for logging; nil means the knob could not be read.
type Adjustment struct {
	PID         int
	GroupID     string
	TargetClass policy.PriorityClass

	CurrentNice        int
	CurrentIONice      *policy.IONice
	CurrentLatencyNice *int
	CurrentCPUWeight   *uint32
	CurrentCgroup      string

	Reason string
}

// ApplyResult is the per-cycle outcome tally.
type ApplyResult struct {
	Applied int
	Skipped int // suppressed by hysteresis
	Errors  int
}

// Actuator plans and applies priority changes. The cgroup hierarchy is
// optional; without it only the per-process knobs are actuated.
type Actuator struct {
	backend    Backend
	cg         *cgroup.Hierarchy
	hysteresis *Hysteresis
	log        *zap.Logger
}

func New(backend Backend, cg *cgroup.Hierarchy, hysteresis *Hysteresis, log *zap.Logger) *Actuator {
	if hysteresis == nil {
		hysteresis = NewHysteresis(0, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Actuator{backend: backend, cg: cg, hysteresis: hysteresis, log: log}
}

// PlanChanges compares every classified process against its target
// class and returns the ones that differ. Processes whose group has no
// verdict are left untouched. An unreadable current value counts as a
// difference; the knob might be anything, so it gets set.
func (a *Actuator) PlanChanges(procs []snapshot.ProcessRecord, groups []snapshot.AppGroupRecord, verdicts map[string]policy.Result) []Adjustment {
	groupOf := make(map[int]string)
	for _, g := range groups {
		for _, pid := range g.PIDs {
			groupOf[pid] = g.ID
		}
	}

	var plan []Adjustment
	for i := range procs {
		p := &procs[i]
		groupID, ok := groupOf[p.PID]
		if !ok {
			continue
		}
		verdict, ok := verdicts[groupID]
		if !ok {
			continue
		}
		target := verdict.Class.Params()

		adj := Adjustment{
			PID:           p.PID,
			GroupID:       groupID,
			TargetClass:   verdict.Class,
			CurrentCgroup: p.CgroupPath,
			Reason:        verdict.Reason,
		}

		adj.CurrentNice = p.Nice
		if v, ok := a.backend.ReadNice(p.PID); ok {
			adj.CurrentNice = v
		}
		if p.IONiceClass != nil && p.IONiceLevel != nil {
			adj.CurrentIONice = &policy.IONice{Class: *p.IONiceClass, Level: *p.IONiceLevel}
		} else if v, ok := a.backend.ReadIONice(p.PID); ok {
			adj.CurrentIONice = &v
		}
		if v, ok := a.backend.ReadLatencyNice(p.PID); ok {
			adj.CurrentLatencyNice = &v
		}
		adj.CurrentCPUWeight = a.readCPUWeight(p.CgroupPath)

		if needsChange(&adj, target) {
			plan = append(plan, adj)
		}
	}
	return plan
}

func needsChange(adj *Adjustment, target policy.Params) bool {
	if adj.CurrentNice != target.Nice {
		return true
	}
	if adj.CurrentLatencyNice == nil || *adj.CurrentLatencyNice != target.LatencyNice {
		return true
	}
	if adj.CurrentIONice == nil || *adj.CurrentIONice != target.IONice {
		return true
	}
	if adj.CurrentCPUWeight == nil || *adj.CurrentCPUWeight != target.CPUWeight {
		return true
	}
	return false
}

// Apply pushes the planned changes into the kernel. Failures on one PID
// never stop the rest: a nice or ionice failure counts as an error for
// that PID, a latency-nice or cgroup failure is only logged because old
// kernels and missing hierarchies are expected in the field.
func (a *Actuator) Apply(plan []Adjustment) ApplyResult {
	var result ApplyResult
	for _, adj := range plan {
		if !a.hysteresis.ShouldApply(adj.PID, adj.TargetClass) {
			a.log.Debug("change suppressed by hysteresis",
				zap.Int("pid", adj.PID),
				zap.String("group", adj.GroupID),
				zap.Stringer("class", adj.TargetClass),
			)
			result.Skipped++
			continue
		}

		target := adj.TargetClass.Params()

		if err := a.backend.ApplyNice(adj.PID, target.Nice); err != nil {
			a.log.Warn("failed to apply nice",
				zap.Int("pid", adj.PID),
				zap.String("group", adj.GroupID),
				zap.Int("target_nice", target.Nice),
				zap.String("reason", adj.Reason),
				zap.Error(err),
			)
			result.Errors++
			continue
		}

		if err := a.backend.ApplyLatencyNice(adj.PID, target.LatencyNice); err != nil {
			a.log.Warn("failed to apply latency nice",
				zap.Int("pid", adj.PID),
				zap.Int("target_latency_nice", target.LatencyNice),
				zap.Error(err),
			)
			// Not fatal for the PID; nice already landed.
		}

		if err := a.backend.ApplyIONice(adj.PID, target.IONice); err != nil {
			a.log.Warn("failed to apply ionice",
				zap.Int("pid", adj.PID),
				zap.String("group", adj.GroupID),
				zap.Int("target_class", target.IONice.Class),
				zap.Int("target_level", target.IONice.Level),
				zap.Error(err),
			)
			result.Errors++
			continue
		}

		a.applyCgroup(&adj, target.CPUWeight)

		a.hysteresis.Record(adj.PID, adj.TargetClass)
		result.Applied++
	}
	return result
}

// Cleanup forwards the live PID set to the hysteresis tracker.
func (a *Actuator) Cleanup(activePids []int) {
	a.hysteresis.Cleanup(activePids)
}

// applyCgroup moves the PID into its per-app cgroup and sets the CPU
// weight. All failures are soft.
func (a *Actuator) applyCgroup(adj *Adjustment, weight uint32) {
	if a.cg == nil {
		return
	}
	rel, err := a.cg.CreateAppGroup(sanitizeGroupID(adj.GroupID))
	if err != nil {
		a.log.Warn("failed to create app cgroup", zap.String("group", adj.GroupID), zap.Error(err))
		return
	}
	if err := a.cg.WriteParam(rel, "cpu.weight", strconv.FormatUint(uint64(weight), 10)); err != nil {
		a.log.Warn("failed to set cpu.weight", zap.String("cgroup", rel), zap.Error(err))
	}
	if strings.TrimPrefix(adj.CurrentCgroup, "/") == rel {
		return
	}
	if err := a.cg.MoveProcess(rel, adj.PID); err != nil {
		a.log.Warn("failed to move process into cgroup",
			zap.Int("pid", adj.PID),
			zap.String("cgroup", rel),
			zap.Error(err),
		)
	}
}

// readCPUWeight reads cpu.weight of the cgroup a process currently
// lives in. Absent hierarchy, path or file all report unknown.
func (a *Actuator) readCPUWeight(cgroupPath string) *uint32 {
	if a.cg == nil || cgroupPath == "" {
		return nil
	}
	raw, ok, err := a.cg.ReadParam(strings.TrimPrefix(cgroupPath, "/"), "cpu.weight")
	if err != nil || !ok {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	w := uint32(v)
	return &w
}

// sanitizeGroupID makes a group ID safe to use as a directory name.
func sanitizeGroupID(id string) string {
	return strings.ReplaceAll(strings.TrimPrefix(id, "/"), "/", "-")
}
