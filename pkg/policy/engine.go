package policy

import (
	"strings"

	"go.uber.org/zap"

	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
)

// Context carries the system-wide signals the rules consult besides the
// groups themselves.
type Context struct {
	UserActive      bool
	AudioXrunsDelta *uint64
	BadResponse     bool
}

// Result is the verdict for one group. Reason is free text for logs.
type Result struct {
	Class  PriorityClass
	Reason string
}

// Engine assigns a PriorityClass to every app group. Guardrails run
// first and cannot be overridden by the semantic rules.
type Engine struct {
	noisyCPUShare float64
	log           *zap.Logger
}

// DefaultNoisyCPUShare is the whole-machine CPU share above which an
// unfocused group counts as a noisy neighbour.
const DefaultNoisyCPUShare = 0.7

func NewEngine(noisyCPUShare float64, log *zap.Logger) *Engine {
	if noisyCPUShare <= 0 {
		noisyCPUShare = DefaultNoisyCPUShare
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{noisyCPUShare: noisyCPUShare, log: log}
}

// Evaluate classifies every group. Processes must be the same records
// the groups were built from; member lookups go through them.
func (e *Engine) Evaluate(groups []snapshot.AppGroupRecord, procs []snapshot.ProcessRecord, ctx Context) map[string]Result {
	byPID := make(map[int]*snapshot.ProcessRecord, len(procs))
	for i := range procs {
		byPID[procs[i].PID] = &procs[i]
	}

	results := make(map[string]Result, len(groups))
	for _, g := range groups {
		members := make([]*snapshot.ProcessRecord, 0, len(g.PIDs))
		for _, pid := range g.PIDs {
			if p, ok := byPID[pid]; ok {
				members = append(members, p)
			}
		}
		r := e.evaluateGroup(&g, members, ctx)
		e.log.Debug("classified group",
			zap.String("group", g.ID),
			zap.Stringer("class", r.Class),
			zap.String("reason", r.Reason),
		)
		results[g.ID] = r
	}
	return results
}

func (e *Engine) evaluateGroup(g *snapshot.AppGroupRecord, members []*snapshot.ProcessRecord, ctx Context) Result {
	// Guardrails first.
	if isSystemGroup(members) {
		return Result{Class: Normal, Reason: "guardrail: system process, leaving unchanged"}
	}
	if xruns := ctx.AudioXrunsDelta; xruns != nil && *xruns > 0 && hasAudioClient(members) {
		return Result{Class: Interactive, Reason: "guardrail: audio client with xrun, protecting"}
	}

	// Semantic rules, most specific first.
	if g.IsFocused && (hasAudioClient(members) || hasTag(g.Tags, "game")) {
		return Result{Class: CritInteractive, Reason: "focused group with audio/game"}
	}
	if g.IsFocused && g.HasGUIWindow {
		return Result{Class: Interactive, Reason: "focused GUI group"}
	}
	if ctx.UserActive && hasTTY(members) {
		return Result{Class: Interactive, Reason: "terminal group with active user"}
	}
	if ctx.UserActive && (hasTag(g.Tags, "updater") || hasTag(g.Tags, "indexer") || hasTag(g.Tags, "maintenance")) {
		return Result{Class: Background, Reason: "updater/indexer with active user"}
	}
	if ctx.BadResponse && !g.IsFocused && g.MaxCPUShare != nil && *g.MaxCPUShare > e.noisyCPUShare {
		return Result{Class: Background, Reason: "noisy neighbour throttling"}
	}

	return Result{Class: Normal, Reason: "default: no rules matched"}
}

// isSystemGroup reports whether any member looks like core system
// plumbing the daemon must never touch.
func isSystemGroup(members []*snapshot.ProcessRecord) bool {
	for _, p := range members {
		exe := strings.ToLower(p.Exe)
		if strings.Contains(exe, "systemd") ||
			strings.Contains(exe, "journald") ||
			strings.Contains(exe, "udevd") ||
			strings.Contains(exe, "kernel") {
			return true
		}
		if strings.HasPrefix(p.CgroupPath, "/system.slice") &&
			(strings.Contains(p.CgroupPath, "systemd") || strings.Contains(p.CgroupPath, "kernel")) {
			return true
		}
	}
	return false
}

func hasAudioClient(members []*snapshot.ProcessRecord) bool {
	for _, p := range members {
		if p.IsAudioClient {
			return true
		}
	}
	return false
}

func hasTTY(members []*snapshot.ProcessRecord) bool {
	for _, p := range members {
		if p.HasTTY {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
