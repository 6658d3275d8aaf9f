package actuator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SaSHuRiK/smoothtask/pkg/policy"
	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/system/cgroup"
)

func testHierarchy(t *testing.T) *cgroup.Hierarchy {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.controllers"), []byte("cpu io\n"), 0o644))
	h, err := cgroup.OpenAt(root)
	require.NoError(t, err)
	return h
}

func testGroup(id string, pids ...int) snapshot.AppGroupRecord {
	return snapshot.AppGroupRecord{ID: id, RootPID: pids[0], PIDs: pids}
}

func TestPlanChanges(t *testing.T) {
	be := NewFakeBackend()
	a := New(be, nil, NewHysteresis(0, 0), zaptest.NewLogger(t))

	procs := []snapshot.ProcessRecord{{PID: 100, Nice: 0}}
	groups := []snapshot.AppGroupRecord{testGroup("app", 100)}
	verdicts := map[string]policy.Result{
		"app": {Class: policy.Interactive, Reason: "focused GUI group"},
	}

	t.Run("plans when priorities differ", func(t *testing.T) {
		plan := a.PlanChanges(procs, groups, verdicts)
		require.Len(t, plan, 1)
		assert.Equal(t, 100, plan[0].PID)
		assert.Equal(t, "app", plan[0].GroupID)
		assert.Equal(t, policy.Interactive, plan[0].TargetClass)
		assert.Equal(t, "focused GUI group", plan[0].Reason)
	})

	t.Run("skips groups without a verdict", func(t *testing.T) {
		plan := a.PlanChanges(procs, groups, map[string]policy.Result{})
		assert.Empty(t, plan)
	})

	t.Run("skips processes outside any group", func(t *testing.T) {
		loner := []snapshot.ProcessRecord{{PID: 999}}
		plan := a.PlanChanges(loner, groups, verdicts)
		assert.Empty(t, plan)
	})
}

func TestPlanChanges_SkipsWhenEverythingMatches(t *testing.T) {
	be := NewFakeBackend()
	cg := testHierarchy(t)

	// Put the process into a cgroup whose cpu.weight already matches the
	// Interactive target, with all per-process knobs matching too.
	rel, err := cg.CreateAppGroup("app")
	require.NoError(t, err)
	require.NoError(t, cg.WriteParam(rel, "cpu.weight", "150"))

	params := policy.Interactive.Params()
	require.NoError(t, be.ApplyNice(100, params.Nice))
	require.NoError(t, be.ApplyIONice(100, params.IONice))
	require.NoError(t, be.ApplyLatencyNice(100, params.LatencyNice))

	a := New(be, cg, NewHysteresis(0, 0), zaptest.NewLogger(t))
	procs := []snapshot.ProcessRecord{{PID: 100, Nice: params.Nice, CgroupPath: "/" + rel}}
	groups := []snapshot.AppGroupRecord{testGroup("app", 100)}
	verdicts := map[string]policy.Result{"app": {Class: policy.Interactive}}

	plan := a.PlanChanges(procs, groups, verdicts)
	assert.Empty(t, plan)
}

func TestApply(t *testing.T) {
	be := NewFakeBackend()
	cg := testHierarchy(t)
	a := New(be, cg, NewHysteresis(0, 0), zaptest.NewLogger(t))

	plan := []Adjustment{{PID: 100, GroupID: "app", TargetClass: policy.Background}}
	result := a.Apply(plan)

	assert.Equal(t, ApplyResult{Applied: 1}, result)

	params := policy.Background.Params()
	nice, ok := be.ReadNice(100)
	require.True(t, ok)
	assert.Equal(t, params.Nice, nice)

	ionice, ok := be.ReadIONice(100)
	require.True(t, ok)
	assert.Equal(t, params.IONice, ionice)

	ln, ok := be.ReadLatencyNice(100)
	require.True(t, ok)
	assert.Equal(t, params.LatencyNice, ln)

	rel := filepath.Join("smoothtask", "app-app")
	weight, ok, err := cg.ReadParam(rel, "cpu.weight")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "50", weight)

	pids, err := cg.Procs(rel)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, pids)
}

func TestApply_DeadProcessCountsAsError(t *testing.T) {
	be := NewFakeBackend()
	be.MarkDead(100)
	a := New(be, nil, NewHysteresis(0, 0), zaptest.NewLogger(t))

	result := a.Apply([]Adjustment{
		{PID: 100, GroupID: "gone", TargetClass: policy.Idle},
		{PID: 200, GroupID: "alive", TargetClass: policy.Idle},
	})
	assert.Equal(t, ApplyResult{Applied: 1, Errors: 1}, result)

	_, ok := be.ReadNice(200)
	assert.True(t, ok, "the healthy PID must still be actuated")
}

func TestApply_HysteresisSkips(t *testing.T) {
	be := NewFakeBackend()
	hyst := NewHysteresis(time.Hour, 1)
	hyst.Record(100, policy.Interactive)
	a := New(be, nil, hyst, zaptest.NewLogger(t))

	result := a.Apply([]Adjustment{{PID: 100, GroupID: "app", TargetClass: policy.Background}})
	assert.Equal(t, ApplyResult{Skipped: 1}, result)

	_, ok := be.ReadNice(100)
	assert.False(t, ok, "suppressed change must not touch the backend")
}

func TestApply_LatencyNiceUnsupportedIsNotAnError(t *testing.T) {
	be := NewFakeBackend()
	be.LatencyNiceUnsupported = true
	a := New(be, nil, NewHysteresis(0, 0), zaptest.NewLogger(t))

	result := a.Apply([]Adjustment{{PID: 100, GroupID: "app", TargetClass: policy.Interactive}})
	assert.Equal(t, ApplyResult{Applied: 1}, result)
}

func TestApply_NoCgroupHierarchy(t *testing.T) {
	be := NewFakeBackend()
	a := New(be, nil, NewHysteresis(0, 0), zaptest.NewLogger(t))

	result := a.Apply([]Adjustment{{PID: 100, GroupID: "app", TargetClass: policy.Normal}})
	assert.Equal(t, ApplyResult{Applied: 1}, result)
}
