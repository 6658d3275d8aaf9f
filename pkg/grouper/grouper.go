// Package grouper clusters a cycle's process records into application groups.
//
// Grouping is a pure function over the input records: processes are first
// partitioned by normalized cgroup path, then each partition is split into
// ancestry trees, and each tree becomes one group with aggregated metrics.
package grouper

import (
	"sort"
	"strconv"
	"strings"

	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/types"
)

// Group clusters the records of one sampling cycle into application groups.
//
// Every input PID lands in exactly one group. Empty input yields an empty
// (non-nil error-free) result. The output is ordered by root PID so that
// consumers see a deterministic sequence.
func Group(records []snapshot.ProcessRecord) []snapshot.AppGroupRecord {
	if len(records) == 0 {
		return nil
	}

	byPID := make(map[int]*snapshot.ProcessRecord, len(records))
	for i := range records {
		byPID[records[i].PID] = &records[i]
	}

	// Partition by normalized cgroup path; processes without a cgroup go
	// into a separate pool keyed by the empty string.
	partitions := make(map[string][]int)
	for i := range records {
		key := ""
		if records[i].CgroupPath != "" {
			key = Normalize(records[i].CgroupPath)
		}
		partitions[key] = append(partitions[key], records[i].PID)
	}

	var groups []snapshot.AppGroupRecord
	for key, pids := range partitions {
		trees := splitTrees(pids, byPID)
		for _, tree := range trees {
			root := findRoot(tree, byPID)
			id := groupID(key, root, len(trees))
			groups = append(groups, aggregate(id, root, tree, byPID))
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].RootPID < groups[j].RootPID })
	return groups
}

// Normalize truncates a cgroup path immediately after the first segment that
// matches session-*.scope, or equals app.slice or system.slice. Empty
// segments are dropped and the result always starts with "/".
func Normalize(path string) string {
	var kept []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		kept = append(kept, seg)
		if isBoundary(seg) {
			break
		}
	}
	return "/" + strings.Join(kept, "/")
}

func isBoundary(seg string) bool {
	if strings.HasPrefix(seg, "session-") && strings.HasSuffix(seg, ".scope") {
		return true
	}
	return seg == "app.slice" || seg == "system.slice"
}

// splitTrees partitions the given pids into connected components of the
// parent/child relation restricted to this pid set. The adjacency index is
// built once, so the whole split is linear in the partition size.
func splitTrees(pids []int, byPID map[int]*snapshot.ProcessRecord) [][]int {
	inSet := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		inSet[pid] = struct{}{}
	}

	children := make(map[int][]int, len(pids))
	for _, pid := range pids {
		rec := byPID[pid]
		if _, ok := inSet[rec.PPID]; ok && rec.PPID != pid {
			children[rec.PPID] = append(children[rec.PPID], pid)
		}
	}

	// Deterministic traversal order.
	ordered := append([]int(nil), pids...)
	sort.Ints(ordered)

	var trees [][]int
	assigned := make(map[int]struct{}, len(pids))
	for _, pid := range ordered {
		if _, done := assigned[pid]; done {
			continue
		}

		root := ascendToRoot(pid, inSet, byPID)

		// Collect the component below root. The visited set bounds the
		// walk even if /proc momentarily exposed a cyclic parent chain.
		var tree []int
		stack := []int{root}
		visited := make(map[int]struct{})
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := visited[cur]; seen {
				continue
			}
			visited[cur] = struct{}{}
			if _, done := assigned[cur]; done {
				continue
			}
			assigned[cur] = struct{}{}
			tree = append(tree, cur)
			stack = append(stack, children[cur]...)
		}
		if len(tree) > 0 {
			trees = append(trees, tree)
		}
	}
	return trees
}

// ascendToRoot walks up the parent chain while the parent stays inside the
// partition. Parents equal to pid 1 (init) terminate the ascent: a process
// adopted by init roots its own tree. The visited set guarantees termination
// on malformed cyclic ancestry data.
func ascendToRoot(start int, inSet map[int]struct{}, byPID map[int]*snapshot.ProcessRecord) int {
	cur := start
	visited := map[int]struct{}{cur: {}}
	for {
		rec, ok := byPID[cur]
		if !ok {
			return cur
		}
		if _, in := inSet[rec.PPID]; !in || rec.PPID == 1 {
			return cur
		}
		if _, seen := visited[rec.PPID]; seen {
			return cur
		}
		visited[rec.PPID] = struct{}{}
		cur = rec.PPID
	}
}

// findRoot picks the group root: the member whose parent is outside the group
// or is init. When the ancestry data lets no member qualify (races while
// sampling), the numerically smallest PID wins.
func findRoot(tree []int, byPID map[int]*snapshot.ProcessRecord) int {
	inTree := make(map[int]struct{}, len(tree))
	for _, pid := range tree {
		inTree[pid] = struct{}{}
	}

	best := -1
	for _, pid := range tree {
		rec, ok := byPID[pid]
		if !ok {
			continue
		}
		if _, in := inTree[rec.PPID]; !in || rec.PPID == 1 {
			if best == -1 || pid < best {
				best = pid
			}
		}
	}
	if best != -1 {
		return best
	}

	min := tree[0]
	for _, pid := range tree[1:] {
		if pid < min {
			min = pid
		}
	}
	return min
}

// groupID derives the group identifier. Cgroup-anchored partitions use the
// sanitized normalized path, which keeps the ID stable across cycles; the
// tree suffix disambiguates partitions that split into several ancestry
// trees. Groups from the no-cgroup pool are keyed by their root PID.
func groupID(partition string, rootPID int, treeCount int) string {
	if partition == "" {
		return "tree-" + strconv.Itoa(rootPID)
	}
	base := sanitize(partition)
	if base == "" {
		// The root cgroup "/" sanitizes to nothing; an empty ID would
		// produce a malformed per-app cgroup directory downstream.
		base = "root"
	}
	if treeCount > 1 {
		return base + "-tree-" + strconv.Itoa(rootPID)
	}
	return base
}

func sanitize(path string) string {
	s := strings.TrimPrefix(path, "/")
	return strings.ReplaceAll(s, "/", "-")
}

// aggregate folds member metrics into one AppGroupRecord.
func aggregate(id string, rootPID int, tree []int, byPID map[int]*snapshot.ProcessRecord) snapshot.AppGroupRecord {
	pids := append([]int(nil), tree...)
	sort.Ints(pids)

	g := snapshot.AppGroupRecord{
		ID:      id,
		RootPID: rootPID,
		PIDs:    pids,
	}

	var (
		ioRead, ioWrite, rss types.Bytes
		tags                 = map[string]struct{}{}
	)
	for _, pid := range pids {
		rec := byPID[pid]

		// CPU share is the max across members, not the sum.
		if rec.CPUShare10s != nil {
			if g.MaxCPUShare == nil || *rec.CPUShare10s > *g.MaxCPUShare {
				g.MaxCPUShare = snapshot.Float64(*rec.CPUShare10s)
			}
		}
		if rec.IOReadBytes != nil {
			ioRead += *rec.IOReadBytes
		}
		if rec.IOWriteBytes != nil {
			ioWrite += *rec.IOWriteBytes
		}
		if rec.RSSBytes != nil {
			rss += *rec.RSSBytes
		}

		g.HasGUIWindow = g.HasGUIWindow || rec.HasGUIWindow
		g.IsFocused = g.IsFocused || rec.IsFocusedWindow
		for _, tag := range rec.Tags {
			tags[tag] = struct{}{}
		}
	}

	// Totals that sum to exactly zero are reported as absent, so "no
	// member reported" and "all members reported zero" collapse into one.
	g.IOReadBytes = sumOrAbsent(ioRead)
	g.IOWriteBytes = sumOrAbsent(ioWrite)
	g.RSSBytes = sumOrAbsent(rss)

	for tag := range tags {
		g.Tags = append(g.Tags, tag)
	}
	sort.Strings(g.Tags)

	if root, ok := byPID[rootPID]; ok && root.Exe != "" {
		if i := strings.LastIndexByte(root.Exe, '/'); i >= 0 {
			g.AppName = root.Exe[i+1:]
		} else {
			g.AppName = root.Exe
		}
	}
	return g
}

func sumOrAbsent(total types.Bytes) *types.Bytes {
	if total == 0 {
		return nil
	}
	return total.Ptr()
}
