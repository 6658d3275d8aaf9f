package actuator

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform indicates priority syscalls are unavailable on
// this OS. Only the Linux backend can actuate.
var ErrUnsupportedPlatform = errors.New("actuator: unsupported platform")

// OpError wraps a failed priority syscall with enough context to log and
// to match on the underlying errno.
type OpError struct {
	Op    string // "setpriority", "ioprio_set", "sched_setattr"
	PID   int
	Value int
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s pid=%d value=%d: %v", e.Op, e.PID, e.Value, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
