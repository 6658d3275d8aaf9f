package actuator

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/SaSHuRiK/smoothtask/pkg/policy"
)

// FakeBackend is an in-memory Backend for tests and dry runs. Marking a
// PID dead makes every call behave as if the process exited.
type FakeBackend struct {
	mu      sync.Mutex
	nice    map[int]int
	ionice  map[int]policy.IONice
	latency map[int]int
	dead    map[int]bool

	// LatencyNiceUnsupported simulates a kernel without latency_nice:
	// applies silently succeed without storing, reads report unknown.
	LatencyNiceUnsupported bool
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		nice:    make(map[int]int),
		ionice:  make(map[int]policy.IONice),
		latency: make(map[int]int),
		dead:    make(map[int]bool),
	}
}

// MarkDead makes pid behave like an exited process.
func (f *FakeBackend) MarkDead(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[pid] = true
}

func (f *FakeBackend) ApplyNice(pid, nice int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] {
		return &OpError{Op: "setpriority", PID: pid, Value: nice, Err: unix.ESRCH}
	}
	f.nice[pid] = nice
	return nil
}

func (f *FakeBackend) ReadNice(pid int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] {
		return 0, false
	}
	v, ok := f.nice[pid]
	return v, ok
}

func (f *FakeBackend) ApplyIONice(pid int, io policy.IONice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] {
		return &OpError{Op: "ioprio_set", PID: pid, Err: unix.ESRCH}
	}
	f.ionice[pid] = io
	return nil
}

func (f *FakeBackend) ReadIONice(pid int) (policy.IONice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] {
		return policy.IONice{}, false
	}
	v, ok := f.ionice[pid]
	return v, ok
}

func (f *FakeBackend) ApplyLatencyNice(pid, latencyNice int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] {
		return &OpError{Op: "sched_setattr", PID: pid, Value: latencyNice, Err: unix.ESRCH}
	}
	if f.LatencyNiceUnsupported {
		return nil
	}
	f.latency[pid] = latencyNice
	return nil
}

func (f *FakeBackend) ReadLatencyNice(pid int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[pid] || f.LatencyNiceUnsupported {
		return 0, false
	}
	v, ok := f.latency[pid]
	return v, ok
}
