package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// appSliceName is the directory the daemon owns under the hierarchy root.
// Per-app groups are created beneath it.
const appSliceName = "smoothtask"

// Hierarchy is a handle to a mounted cgroup v2 unified hierarchy.
//
// Reads degrade gracefully: a missing controller file yields an absent
// value, not an error. Writes are the opposite; a failed write is always
// reported with the path and value that failed.
type Hierarchy struct {
	root string
}

// OpenAt returns a handle rooted at an explicit directory. The directory
// must contain a cgroup.controllers file.
func OpenAt(root string) (*Hierarchy, error) {
	if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err != nil {
		return nil, fmt.Errorf("%w at %s", ErrNoUnified, root)
	}
	return &Hierarchy{root: root}, nil
}

// Root returns the hierarchy mount point.
func (h *Hierarchy) Root() string { return h.root }

// Controllers returns the controllers available at the hierarchy root.
func (h *Hierarchy) Controllers() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(h.root, "cgroup.controllers"))
	if err != nil {
		return nil, fmt.Errorf("read controllers: %w", err)
	}
	return strings.Fields(string(data)), nil
}

// ReadParam reads a single controller file from the cgroup at relPath.
// A missing file or missing cgroup reports absent (ok=false) without error;
// only unexpected failures surface as errors.
func (h *Hierarchy) ReadParam(relPath, name string) (string, bool, error) {
	p := filepath.Join(h.root, relPath, name)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", p, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteParam writes value into a controller file of the cgroup at relPath.
// Unlike reads, any failure here is hard: the caller asked for an effect
// and must learn it did not happen.
func (h *Hierarchy) WriteParam(relPath, name, value string) error {
	p := filepath.Join(h.root, relPath, name)
	if err := os.WriteFile(p, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %q to %s: %w", value, p, err)
	}
	return nil
}

// CreateAppGroup ensures the per-app cgroup for id exists and returns its
// path relative to the hierarchy root. Creating an existing group is a no-op.
func (h *Hierarchy) CreateAppGroup(id string) (string, error) {
	rel := filepath.Join(appSliceName, "app-"+id)
	if err := os.MkdirAll(filepath.Join(h.root, rel), 0o755); err != nil {
		return "", fmt.Errorf("create cgroup %s: %w", rel, err)
	}
	return rel, nil
}

// MoveProcess migrates pid into the cgroup at relPath.
func (h *Hierarchy) MoveProcess(relPath string, pid int) error {
	return h.WriteParam(relPath, "cgroup.procs", strconv.Itoa(pid))
}

// Procs returns the PIDs currently in the cgroup at relPath. A vanished
// cgroup reports an empty list.
func (h *Hierarchy) Procs(relPath string) ([]int, error) {
	raw, ok, err := h.ReadParam(relPath, "cgroup.procs")
	if err != nil || !ok {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Fields(raw) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parse cgroup.procs entry %q: %w", line, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Contains reports whether the cgroup at relPath exists.
func (h *Hierarchy) Contains(relPath string) bool {
	fi, err := os.Stat(filepath.Join(h.root, relPath))
	return err == nil && fi.IsDir()
}

// ContainsPID reports whether pid is a member of the cgroup at relPath.
// A vanished cgroup reports false without error.
func (h *Hierarchy) ContainsPID(relPath string, pid int) (bool, error) {
	pids, err := h.Procs(relPath)
	if err != nil {
		return false, err
	}
	for _, p := range pids {
		if p == pid {
			return true, nil
		}
	}
	return false, nil
}

// RemoveIfEmpty removes the cgroup at relPath when no process remains in
// it. Removing a populated cgroup reports ErrNotEmpty; a vanished cgroup
// is treated as already removed.
func (h *Hierarchy) RemoveIfEmpty(relPath string) error {
	pids, err := h.Procs(relPath)
	if err != nil {
		return err
	}
	if len(pids) > 0 {
		return fmt.Errorf("%w: %s has %d procs", ErrNotEmpty, relPath, len(pids))
	}
	if err := os.Remove(filepath.Join(h.root, relPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cgroup %s: %w", relPath, err)
	}
	return nil
}
