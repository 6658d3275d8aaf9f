//go:build linux

package cgroup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const mountinfoPath = "/proc/self/mountinfo"

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// scanMounts parses mountinfo content and returns the mount points of
// cgroup v1 and cgroup v2 filesystems.
//
// The line format has a " - fstype " separator; the mount point is field
// 5 of the pre-separator part. Ref: man 5 proc.
func scanMounts(r io.Reader) (v1Pts, v2Pts []string, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch tail[0] {
		case "cgroup2":
			v2Pts = append(v2Pts, mountPoint)
		case "cgroup":
			v1Pts = append(v1Pts, mountPoint)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan mountinfo: %w", err)
	}
	return v1Pts, v2Pts, nil
}

// Detect returns the detected cgroup version and a human-readable detail string.
func Detect() (Version, string, error) {
	f, err := os.Open(mountinfoPath)
	if err != nil {
		return Unsupported, "", fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	v1Pts, v2Pts, err := scanMounts(f)
	if err != nil {
		return Unsupported, "", err
	}

	switch {
	case len(v1Pts) > 0 && len(v2Pts) > 0:
		return Hybrid, fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(v2Pts, ","), strings.Join(v1Pts, ",")), nil
	case len(v2Pts) > 0:
		return V2, fmt.Sprintf("cgroup2 on %v", strings.Join(v2Pts, ",")), nil
	case len(v1Pts) > 0:
		return V1, fmt.Sprintf("cgroup v1 on %v", strings.Join(v1Pts, ",")), nil
	default:
		return Unsupported, "no cgroup mounts found", nil
	}
}

// Open finds the unified hierarchy through the cgroup2 mount points in
// mountinfo and returns a handle rooted at the first usable one. A mount
// is usable when its cgroup.controllers marker is readable. Pure v1 and
// cgroup-less systems report ErrNoUnified.
func Open() (*Hierarchy, error) {
	f, err := os.Open(mountinfoPath)
	if err != nil {
		return nil, fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	_, v2Pts, err := scanMounts(f)
	if err != nil {
		return nil, err
	}
	for _, root := range v2Pts {
		if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err == nil {
			return &Hierarchy{root: root}, nil
		}
	}
	return nil, ErrNoUnified
}
