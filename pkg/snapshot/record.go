// Package snapshot defines the per-cycle record types exchanged between the
// sampler, the grouper, the actuator and the observability collaborators.
//
// All records are created fresh for a sampling cycle and are not mutated once
// the cycle's group/actuate pass is over. Optional measurements (values that a
// source may legitimately fail to produce) are pointers; nil means "absent",
// which is distinct from a measured zero.
package snapshot

import "github.com/SaSHuRiK/smoothtask/pkg/types"

// ProcessRecord describes one process at sample time. Identity is the PID.
type ProcessRecord struct {
	PID  int
	PPID int
	UID  uint32
	GID  uint32

	// Exe is the resolved executable path, empty when the symlink was
	// unreadable (kernel threads, permission).
	Exe string
	// CgroupPath is the cgroup v2 path from /proc/<pid>/cgroup, empty when
	// the process has no known cgroup.
	CgroupPath string
	State      string

	// CPU share of total machine capacity over the short and long window.
	CPUShare1s  *float64
	CPUShare10s *float64

	IOReadBytes  *types.Bytes
	IOWriteBytes *types.Bytes
	RSSBytes     *types.Bytes

	HasGUIWindow    bool
	IsFocusedWindow bool
	IsAudioClient   bool
	HasTTY          bool

	Nice        int
	IONiceClass *int
	IONiceLevel *int

	// Tags are externally assigned labels (e.g. "browser", "compiler").
	Tags []string
	// PriorityTag is an externally assigned priority hint; the core carries
	// it through grouping but never interprets it.
	PriorityTag string
}

// AppGroupRecord is a cluster of related processes treated as one priority
// unit. The ID is stable across cycles only when the group is anchored to a
// cgroup path; tree-only groups keep their ID for as long as the root lives.
type AppGroupRecord struct {
	ID      string
	RootPID int
	PIDs    []int
	// AppName is the basename of the root process executable, empty when
	// the root's exe is unknown.
	AppName string

	// MaxCPUShare is the maximum 10s CPU share across members: the worst
	// offender, not the sum.
	MaxCPUShare *float64
	// Summed totals. A sum over members that all reported absent (or zero)
	// collapses back to nil, so "no data" and "confirmed zero" are
	// conflated here.
	IOReadBytes  *types.Bytes
	IOWriteBytes *types.Bytes
	RSSBytes     *types.Bytes

	HasGUIWindow bool
	IsFocused    bool
	Tags         []string

	// PriorityClass is filled in by the external classification engine
	// after grouping; empty until then.
	PriorityClass string
}

// ResponsivenessMetrics is the feedback record consumed by the classifier on
// the next cycle and by health monitoring.
type ResponsivenessMetrics struct {
	SchedLatencyP95Ms *float64
	SchedLatencyP99Ms *float64
	AudioXrunsDelta   *uint64
	UILoopP95Ms       *float64

	BadResponsiveness bool
	// Score in [0,1]; 1.0 means no detectable pressure on interactivity.
	Score *float64
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Uint64 returns a pointer to v.
func Uint64(v uint64) *uint64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
