//go:build linux

package proc

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaSHuRiK/smoothtask/pkg/snapshot"
	"github.com/SaSHuRiK/smoothtask/pkg/types"
)

// slowWindow is how far apart the slow CPU anchor is advanced; the delta
// against it gives the smoothed ~10s share.
const slowWindow = 10 * time.Second

type cpuAnchor struct {
	lastTicks uint64
	lastAt    time.Time
	slowTicks uint64
	slowAt    time.Time
	share10   *float64 // last computed slow-window share
}

// Sampler walks /proc and produces one ProcessRecord per live PID.
//
// CPU shares are deltas against per-PID anchors kept between calls, so
// the first Snapshot after a PID appears has no share for it. Anchors of
// vanished PIDs are pruned on every call.
type Sampler struct {
	mu      sync.Mutex
	anchors map[int]*cpuAnchor
	ncpu    int
	log     *zap.Logger
}

func NewSampler(log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{
		anchors: make(map[int]*cpuAnchor),
		ncpu:    runtime.NumCPU(),
		log:     log,
	}
}

// Snapshot reads every live PID once. Processes that vanish mid-walk are
// skipped silently; per-file read failures degrade to absent fields.
func (s *Sampler) Snapshot() ([]snapshot.ProcessRecord, error) {
	pids, err := ListPIDs()
	if err != nil {
		return nil, err
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]struct{}, len(pids))
	records := make([]snapshot.ProcessRecord, 0, len(pids))
	for _, pid := range pids {
		st, err := ReadStat(pid)
		if err != nil {
			// Exited between the directory listing and the read.
			continue
		}
		seen[pid] = struct{}{}

		rec := snapshot.ProcessRecord{
			PID:    pid,
			PPID:   st.PPID,
			State:  st.State,
			Nice:   st.Nice,
			HasTTY: st.TTYNr != 0,
		}
		if uid, gid, err := ReadIDs(pid); err == nil {
			rec.UID = uint32(uid)
			rec.GID = uint32(gid)
		}
		if exe, err := ReadExe(pid); err == nil {
			rec.Exe = exe
		}
		if cg, err := ReadCgroup(pid); err == nil {
			rec.CgroupPath = cg
		}
		if rd, wr, err := ReadIO(pid); err == nil {
			rec.IOReadBytes = types.Bytes(rd).Ptr()
			rec.IOWriteBytes = types.Bytes(wr).Ptr()
		}
		if rss, err := ReadRSS(pid); err == nil {
			rec.RSSBytes = types.Bytes(rss).Ptr()
		}

		rec.CPUShare1s, rec.CPUShare10s = s.advanceAnchor(pid, st, now)
		records = append(records, rec)
	}

	for pid := range s.anchors {
		if _, ok := seen[pid]; !ok {
			delete(s.anchors, pid)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records, nil
}

// advanceAnchor updates the CPU anchors for pid and returns the fast and
// slow shares, nil while not enough history exists. Caller holds s.mu.
func (s *Sampler) advanceAnchor(pid int, st Stat, now time.Time) (fast, slow *float64) {
	ticks := st.Utime + st.Stime
	a, ok := s.anchors[pid]
	if !ok {
		s.anchors[pid] = &cpuAnchor{
			lastTicks: ticks, lastAt: now,
			slowTicks: ticks, slowAt: now,
		}
		return nil, nil
	}

	if elapsed := now.Sub(a.lastAt).Seconds(); elapsed > 0 {
		share := shareOf(ticks-a.lastTicks, elapsed, s.ncpu)
		fast = &share
	}
	a.lastTicks = ticks
	a.lastAt = now

	if elapsed := now.Sub(a.slowAt); elapsed >= slowWindow {
		share := shareOf(ticks-a.slowTicks, elapsed.Seconds(), s.ncpu)
		a.share10 = &share
		a.slowTicks = ticks
		a.slowAt = now
	}
	return fast, a.share10
}

// shareOf converts a jiffy delta over elapsed seconds into a whole-machine
// share in [0,1].
func shareOf(deltaTicks uint64, elapsedSec float64, ncpu int) float64 {
	if elapsedSec <= 0 || ncpu <= 0 {
		return 0
	}
	share := float64(deltaTicks) / (float64(ClockTicks()) * elapsedSec * float64(ncpu))
	if share < 0 {
		return 0
	}
	if share > 1 {
		return 1
	}
	return share
}
