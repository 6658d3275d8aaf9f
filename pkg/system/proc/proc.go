//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ClockTicks returns the number of jiffies (clock ticks) per second.
// It first checks the env var CLK_TCK (useful for testing), otherwise
// falls back to 100 (common default).
//
// Note: On real systems, the authoritative way is `sysconf(_SC_CLK_TCK)`,
// but calling that requires cgo. For portability in a pure-Go library,
// this simplified approach is acceptable.
func ClockTicks() int {
	v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
	if v > 0 {
		return v
	}
	return 100
}

// PageSize returns the system memory page size in bytes.
// Like ClockTicks, it first checks an env override (PAGE_SIZE)
// to ease testing, then falls back to os.Getpagesize().
func PageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// Exists reports whether a given PID currently exists in /proc.
// It simply checks if /proc/<pid> is a valid directory.
func Exists(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}

// ListPIDs returns every numeric entry under /proc, i.e. all live PIDs.
func ListPIDs() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("list /proc: %w", err)
	}
	var pids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

//
// Per-PID readers
//

// Stat holds the fields of /proc/<pid>/stat this daemon cares about.
type Stat struct {
	State     string
	PPID      int
	TTYNr     int    // controlling terminal, 0 for none
	Utime     uint64 // user CPU jiffies
	Stime     uint64 // system CPU jiffies
	Nice      int
	Starttime uint64 // jiffies since boot at process start
}

// ReadStat parses /proc/<pid>/stat.
//
// Caveats:
//   - Field order is fixed, but comm (2nd field) is in parens and may contain
//     spaces and even ") ". We strip everything before the LAST ") " safely.
func ReadStat(pid int) (Stat, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return Stat{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return Stat{}, ErrNoStat
	}
	line := sc.Text()

	// Everything before ") " is pid + comm; after that are numeric fields.
	i := strings.LastIndex(line, ") ")
	if i < 0 {
		return Stat{}, ErrNoStat
	}
	fields := strings.Fields(line[i+2:])

	get := func(idx int) (uint64, error) {
		if idx >= len(fields) {
			return 0, ErrShortStat
		}
		return strconv.ParseUint(fields[idx], 10, 64)
	}
	geti := func(idx int) (int, error) {
		if idx >= len(fields) {
			return 0, ErrShortStat
		}
		return strconv.Atoi(fields[idx])
	}

	// Indexes relative to fields slice (overall field number - 3):
	// state (3rd overall)      => fields[0]
	// ppid (4th overall)       => fields[1]
	// tty_nr (7th overall)     => fields[4]
	// utime (14th overall)     => fields[11]
	// stime (15th overall)     => fields[12]
	// nice (19th overall)      => fields[16]
	// starttime (22nd overall) => fields[19]
	var st Stat
	if len(fields) < 1 {
		return Stat{}, ErrShortStat
	}
	st.State = fields[0]
	var e error
	if st.PPID, e = geti(1); e != nil {
		return Stat{}, e
	}
	st.TTYNr, _ = geti(4)
	st.Utime, _ = get(11)
	st.Stime, _ = get(12)
	st.Nice, _ = geti(16)
	st.Starttime, _ = get(19)
	return st, nil
}

// ReadIDs returns the real UID and GID of a process from /proc/<pid>/status.
func ReadIDs(pid int) (uid, gid int, err error) {
	f, e := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if e != nil {
		return 0, 0, e
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Uid:"):
			fs := strings.Fields(line)
			if len(fs) >= 2 {
				uid, _ = strconv.Atoi(fs[1])
			}
		case strings.HasPrefix(line, "Gid:"):
			fs := strings.Fields(line)
			if len(fs) >= 2 {
				gid, _ = strconv.Atoi(fs[1])
			}
		}
	}
	return uid, gid, sc.Err()
}

// ReadExe resolves /proc/<pid>/exe. Kernel threads and processes owned
// by other users make the link unreadable; callers should treat an error
// as "unknown executable" rather than fatal.
func ReadExe(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}

// ReadCgroup returns the unified-hierarchy cgroup path of a process,
// i.e. the "0::" line of /proc/<pid>/cgroup.
func ReadCgroup(pid int) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutPrefix(line, "0::"); ok {
			return rest, nil
		}
	}
	return "", sc.Err()
}

// ReadIO reads /proc/<pid>/io and returns read_bytes and write_bytes.
// These counters are monotonic and in bytes.
//
// Note: Not all processes expose this file (some kernel threads); in that
// case you'll get an error.
func ReadIO(pid int) (readBytes, writeBytes uint64, err error) {
	f, e := os.Open(fmt.Sprintf("/proc/%d/io", pid))
	if e != nil {
		return 0, 0, e
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "read_bytes:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "read_bytes:"))
			readBytes, _ = strconv.ParseUint(v, 10, 64)
		} else if strings.HasPrefix(line, "write_bytes:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "write_bytes:"))
			writeBytes, _ = strconv.ParseUint(v, 10, 64)
		}
	}
	return readBytes, writeBytes, sc.Err()
}

// ReadRSS returns the Resident Set Size (RSS) in bytes for a PID.
// It prefers smaps_rollup (aggregated, since kernel 4.14) for accuracy.
// If unavailable, falls back to statm's resident page count.
//
// Returns error if neither source is available.
func ReadRSS(pid int) (uint64, error) {
	// Prefer smaps_rollup
	if f, err := os.Open(fmt.Sprintf("/proc/%d/smaps_rollup", pid)); err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "Rss:") {
				fs := strings.Fields(sc.Text())
				if len(fs) >= 2 {
					kb, _ := strconv.ParseUint(fs[1], 10, 64)
					return kb * 1024, nil
				}
			}
		}
	}
	// Fallback: statm field 2 × page size
	if b, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid)); err == nil {
		fs := strings.Fields(string(b))
		if len(fs) >= 2 {
			pages, _ := strconv.ParseUint(fs[1], 10, 64)
			return pages * uint64(PageSize()), nil
		}
	}
	return 0, ErrNoRSS
}

//
// System-level readers
//

// ReadSystemCPU parses /proc/stat for the aggregate CPU line and returns:
// - active: user + nice + system + irq + softirq + steal
// - total:  active + idle + iowait
//
// These are jiffy counters (monotonic increasing). You need to take
// deltas between samples to compute utilization.
func ReadSystemCPU() (active, total uint64, err error) {
	f, e := os.Open("/proc/stat")
	if e != nil {
		return 0, 0, e
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) == 0 || fs[0] != "cpu" {
			continue
		}
		if len(fs) < 8 {
			return 0, 0, ErrNoCPU
		}
		var vals []uint64
		for _, s := range fs[1:] {
			v, _ := strconv.ParseUint(s, 10, 64)
			vals = append(vals, v)
		}
		active = vals[0] + vals[1] + vals[2] + vals[5] + vals[6] + vals[7]
		total = active + vals[3] + vals[4]
		return active, total, nil
	}
	return 0, 0, ErrNoCPU
}
