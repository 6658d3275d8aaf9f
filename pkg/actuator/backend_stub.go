//go:build !linux

package actuator

import "github.com/SaSHuRiK/smoothtask/pkg/policy"

type stubBackend struct{}

// NewBackend returns a backend whose writes always fail; priority
// syscalls only exist on Linux.
func NewBackend() Backend { return stubBackend{} }

func (stubBackend) ApplyNice(int, int) error                 { return ErrUnsupportedPlatform }
func (stubBackend) ReadNice(int) (int, bool)                 { return 0, false }
func (stubBackend) ApplyIONice(int, policy.IONice) error     { return ErrUnsupportedPlatform }
func (stubBackend) ReadIONice(int) (policy.IONice, bool)     { return policy.IONice{}, false }
func (stubBackend) ApplyLatencyNice(int, int) error          { return ErrUnsupportedPlatform }
func (stubBackend) ReadLatencyNice(int) (int, bool)          { return 0, false }
