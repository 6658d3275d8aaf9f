package grouper

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/types"
)

func proc(pid, ppid int, exe, cgroup string) snapshot.ProcessRecord {
	return snapshot.ProcessRecord{
		PID:        pid,
		PPID:       ppid,
		UID:        1000,
		GID:        1000,
		Exe:        exe,
		CgroupPath: cgroup,
		State:      "R",
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/user.slice/user-1000.slice/session-2.scope/app", "/user.slice/user-1000.slice/session-2.scope"},
		{"/user.slice/user-1000.slice/app.slice/firefox.service", "/user.slice/user-1000.slice/app.slice"},
		{"/system.slice/systemd.service", "/system.slice"},
		{"/a.slice/session-1.scope/b.slice/c", "/a.slice/session-1.scope"},
		{"/user.slice/user-1000.slice/custom.slice", "/user.slice/user-1000.slice/custom.slice"},
		{"", "/"},
		{"user.slice", "/user.slice"},
		{"//user.slice///user-1000.slice//app.slice", "/user.slice/user-1000.slice/app.slice"},
		{"/system.slice", "/system.slice"},
		{"/app.slice", "/app.slice"},
		// First boundary wins, whatever follows it.
		{"/user.slice/session-1.scope/session-2.scope/x", "/user.slice/session-1.scope"},
		{"/system.slice/app.slice/service", "/system.slice"},
		{"/user.slice/app.slice/session-1.scope/service", "/user.slice/app.slice"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			assert.Equal(t, c.want, Normalize(c.in))
		})
	}
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil))
	assert.Empty(t, Group([]snapshot.ProcessRecord{}))
}

func TestGroup_SingleProcess(t *testing.T) {
	groups := Group([]snapshot.ProcessRecord{proc(100, 1, "/usr/bin/firefox", "")})

	require.Len(t, groups, 1)
	assert.Equal(t, 100, groups[0].RootPID)
	assert.Equal(t, []int{100}, groups[0].PIDs)
	assert.Equal(t, "firefox", groups[0].AppName)
}

func TestGroup_ProcessTree(t *testing.T) {
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 1, "/usr/bin/firefox", ""),
		proc(101, 100, "/usr/bin/firefox", ""),
		proc(102, 100, "/usr/bin/firefox", ""),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, 100, groups[0].RootPID)
	assert.ElementsMatch(t, []int{100, 101, 102}, groups[0].PIDs)
}

func TestGroup_CgroupPartitionsSeparateRelatives(t *testing.T) {
	// Parent/child relation must not bridge different normalized cgroups.
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 1, "/usr/bin/firefox", "/user.slice/app.slice/firefox.service"),
		proc(101, 100, "/usr/bin/chrome", "/system.slice/cron.service"),
	})

	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.Len(t, g.PIDs, 1)
	}
}

func TestGroup_SameCgroup(t *testing.T) {
	cg := "/user.slice/user-1000.slice/app.slice/firefox.service"
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 1, "/usr/bin/firefox", cg),
		proc(101, 100, "/usr/bin/firefox", cg),
	})

	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []int{100, 101}, groups[0].PIDs)
	// Cgroup-anchored IDs come from the normalized path and are stable.
	assert.Equal(t, "user.slice-user-1000.slice-app.slice", groups[0].ID)
}

func TestGroup_RootCgroupGetsNonEmptyID(t *testing.T) {
	// A process in the root cgroup ("0::/" in /proc/<pid>/cgroup) must not
	// end up with an empty group ID.
	groups := Group([]snapshot.ProcessRecord{proc(500, 1, "/usr/sbin/daemon", "/")})

	require.Len(t, groups, 1)
	assert.Equal(t, "root", groups[0].ID)

	// Several unrelated trees in the root cgroup stay distinguishable.
	groups = Group([]snapshot.ProcessRecord{
		proc(500, 1, "", "/"),
		proc(600, 1, "", "/"),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "root-tree-500", groups[0].ID)
	assert.Equal(t, "root-tree-600", groups[1].ID)
}

func TestGroup_MultipleIndependentTrees(t *testing.T) {
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 1, "/usr/bin/firefox", ""),
		proc(101, 100, "/usr/bin/firefox", ""),
		proc(200, 1, "/usr/bin/chrome", ""),
		proc(201, 200, "/usr/bin/chrome", ""),
	})

	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []int{100, 101}, groups[0].PIDs)
	assert.ElementsMatch(t, []int{200, 201}, groups[1].PIDs)
	assert.Equal(t, "tree-100", groups[0].ID)
	assert.Equal(t, "tree-200", groups[1].ID)
}

func TestGroup_Aggregation(t *testing.T) {
	p1 := proc(100, 1, "/usr/bin/firefox", "")
	p1.CPUShare10s = snapshot.Float64(0.5)
	p1.IOReadBytes = types.Bytes(1000).Ptr()
	p1.IOWriteBytes = types.Bytes(500).Ptr()
	p1.RSSBytes = types.Bytes(100 << 20).Ptr()
	p1.HasGUIWindow = true
	p1.IsFocusedWindow = true
	p1.Tags = []string{"browser"}

	p2 := proc(101, 100, "/usr/bin/firefox", "")
	p2.CPUShare10s = snapshot.Float64(0.3)
	p2.IOReadBytes = types.Bytes(2000).Ptr()
	p2.IOWriteBytes = types.Bytes(1000).Ptr()
	p2.RSSBytes = types.Bytes(50 << 20).Ptr()
	p2.Tags = []string{"renderer"}

	groups := Group([]snapshot.ProcessRecord{p1, p2})
	require.Len(t, groups, 1)
	g := groups[0]

	require.NotNil(t, g.MaxCPUShare)
	assert.Equal(t, 0.5, *g.MaxCPUShare)

	require.NotNil(t, g.IOReadBytes)
	assert.Equal(t, types.Bytes(3000), *g.IOReadBytes)
	require.NotNil(t, g.IOWriteBytes)
	assert.Equal(t, types.Bytes(1500), *g.IOWriteBytes)
	require.NotNil(t, g.RSSBytes)
	assert.Equal(t, types.Bytes(150<<20), *g.RSSBytes)

	assert.True(t, g.HasGUIWindow)
	assert.True(t, g.IsFocused)
	assert.Equal(t, []string{"browser", "renderer"}, g.Tags)
}

func TestGroup_SumOfAbsentCollapses(t *testing.T) {
	// No member reports IO or RSS: the totals stay absent, not zero.
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 1, "", ""),
		proc(101, 100, "", ""),
	})
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].IOReadBytes)
	assert.Nil(t, groups[0].IOWriteBytes)
	assert.Nil(t, groups[0].RSSBytes)
	assert.Nil(t, groups[0].MaxCPUShare)
}

func TestGroup_RootFallbackSmallestPID(t *testing.T) {
	// A two-node parent cycle: neither member qualifies as root by
	// ancestry, the smallest PID must win and the walk must terminate.
	groups := Group([]snapshot.ProcessRecord{
		proc(300, 301, "", ""),
		proc(301, 300, "", ""),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, 300, groups[0].RootPID)
	assert.ElementsMatch(t, []int{300, 301}, groups[0].PIDs)
}

func TestGroup_EveryPIDExactlyOnce(t *testing.T) {
	var records []snapshot.ProcessRecord
	records = append(records, proc(2, 1, "", "/system.slice/a.service"))
	for pid := 10; pid < 60; pid++ {
		parent := 1
		if pid%3 != 0 {
			parent = pid - 1
		}
		records = append(records, proc(pid, parent, "", ""))
	}

	groups := Group(records)
	seen := map[int]int{}
	for _, g := range groups {
		for _, pid := range g.PIDs {
			seen[pid]++
		}
	}
	assert.Len(t, seen, len(records))
	for pid, n := range seen {
		assert.Equalf(t, 1, n, "pid %s assigned to %d groups", strconv.Itoa(pid), n)
	}
}

func TestGroup_ParentOutsidePartitionIsRoot(t *testing.T) {
	// 100's parent (50) was not sampled; 100 still roots its tree.
	groups := Group([]snapshot.ProcessRecord{
		proc(100, 50, "/usr/bin/code", ""),
		proc(101, 100, "/usr/bin/code", ""),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, 100, groups[0].RootPID)
}
