//go:build linux

package actuator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/SaSHuRiK/smoothtask/pkg/policy"
)

const (
	ioprioWhoProcess = 1
	ioprioClassShift = 13
	ioprioPrioMask   = 0xff

	schedFlagLatencyNice = 0x10
)

// schedAttr matches the kernel's struct sched_attr including the
// latency_nice tail added in 5.16-era patches. The size field lets older
// kernels reject the extension explicitly.
type schedAttr struct {
	size        uint32
	policy      uint32
	flags       uint64
	nice        int32
	priority    uint32
	runtime     uint64
	deadline    uint64
	period      uint64
	utilMin     uint32
	utilMax     uint32
	latencyNice int32
}

type sysBackend struct{}

// NewBackend returns the real syscall-based backend.
func NewBackend() Backend { return sysBackend{} }

func (sysBackend) ApplyNice(pid, nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, nice); err != nil {
		return &OpError{Op: "setpriority", PID: pid, Value: nice, Err: err}
	}
	return nil
}

func (sysBackend) ReadNice(pid int) (int, bool) {
	v, err := unix.Getpriority(unix.PRIO_PROCESS, pid)
	if err != nil {
		return 0, false
	}
	// The raw syscall reports 20-nice so it never returns a negative
	// value; undo that.
	return 20 - v, true
}

func (sysBackend) ApplyIONice(pid int, io policy.IONice) error {
	value := io.Class<<ioprioClassShift | io.Level
	_, _, errno := unix.Syscall(unix.SYS_IOPRIO_SET,
		uintptr(ioprioWhoProcess), uintptr(pid), uintptr(value))
	if errno != 0 {
		return &OpError{Op: "ioprio_set", PID: pid, Value: value, Err: errno}
	}
	return nil
}

func (sysBackend) ReadIONice(pid int) (policy.IONice, bool) {
	v, _, errno := unix.Syscall(unix.SYS_IOPRIO_GET,
		uintptr(ioprioWhoProcess), uintptr(pid), 0)
	if errno != 0 {
		return policy.IONice{}, false
	}
	class := int(v>>ioprioClassShift) & 0x3
	if class == 0 {
		// Class "none": the process never had an explicit IO priority.
		return policy.IONice{}, false
	}
	return policy.IONice{Class: class, Level: int(v) & ioprioPrioMask}, true
}

func (sysBackend) ApplyLatencyNice(pid, latencyNice int) error {
	if latencyNice < -20 || latencyNice > 19 {
		return fmt.Errorf("latency nice %d out of range [-20, 19]", latencyNice)
	}
	attr := schedAttr{
		size:        uint32(unsafe.Sizeof(schedAttr{})),
		flags:       schedFlagLatencyNice,
		latencyNice: int32(latencyNice),
	}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETATTR,
		uintptr(pid), uintptr(unsafe.Pointer(&attr)), 0)
	switch errno {
	case 0:
		return nil
	case unix.ENOSYS, unix.E2BIG:
		// Kernel predates latency_nice; nothing to actuate.
		return nil
	default:
		return &OpError{Op: "sched_setattr", PID: pid, Value: latencyNice, Err: errno}
	}
}

func (sysBackend) ReadLatencyNice(pid int) (int, bool) {
	var attr schedAttr
	_, _, errno := unix.Syscall6(unix.SYS_SCHED_GETATTR,
		uintptr(pid), uintptr(unsafe.Pointer(&attr)),
		unsafe.Sizeof(attr), 0, 0, 0)
	if errno != 0 {
		return 0, false
	}
	if attr.flags&schedFlagLatencyNice == 0 {
		return 0, false
	}
	return int(attr.latencyNice), true
}
