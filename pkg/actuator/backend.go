package actuator

import "github.com/SaSHuRiK/smoothtask/pkg/policy"

// Backend performs the per-process priority syscalls. Reads report
// (value, ok); ok=false covers every reason the value is unknowable
// (dead process, old kernel, no permission) because all of them demand
// the same reaction from the planner: treat the knob as unset. Writes
// return a hard error, wrapped in *OpError on the Linux backend.
type Backend interface {
	ApplyNice(pid, nice int) error
	ReadNice(pid int) (int, bool)

	ApplyIONice(pid int, io policy.IONice) error
	ReadIONice(pid int) (policy.IONice, bool)

	// ApplyLatencyNice is a no-op (nil) on kernels without latency-nice
	// support; only real failures are returned.
	ApplyLatencyNice(pid, latencyNice int) error
	ReadLatencyNice(pid int) (int, bool)
}
