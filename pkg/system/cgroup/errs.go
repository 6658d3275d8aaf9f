package cgroup

import "errors"

var (
	// ErrNoUnified indicates no cgroup v2 unified hierarchy was found.
	ErrNoUnified = errors.New("cgroup: no unified hierarchy")

	// ErrNotEmpty indicates a cgroup still has member processes.
	ErrNotEmpty = errors.New("cgroup: not empty")
)
