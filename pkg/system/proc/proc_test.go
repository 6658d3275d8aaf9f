//go:build linux

package proc

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockTicksAndPageSize(t *testing.T) {
	// Defaults (no env overrides)
	t.Setenv("CLK_TCK", "")
	t.Setenv("PAGE_SIZE", "")
	assert.Greater(t, ClockTicks(), 0)
	assert.Greater(t, PageSize(), 0)

	// Env overrides
	t.Setenv("CLK_TCK", "250")
	t.Setenv("PAGE_SIZE", "16384")
	assert.Equal(t, 250, ClockTicks())
	assert.Equal(t, 16384, PageSize())
}

func TestExists(t *testing.T) {
	assert.True(t, Exists(os.Getpid()))
	assert.False(t, Exists(999999))
}

func TestListPIDs(t *testing.T) {
	pids, err := ListPIDs()
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
	for _, pid := range pids {
		assert.Greater(t, pid, 0)
	}
}

func TestReadStat_Self(t *testing.T) {
	me := os.Getpid()
	st, err := ReadStat(me)
	require.NoError(t, err)

	assert.NotEmpty(t, st.State)
	assert.Greater(t, st.PPID, 0)
	assert.Greater(t, st.Starttime, uint64(0))

	// Counters do not go backwards.
	time.Sleep(5 * time.Millisecond)
	st2, err := ReadStat(me)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st2.Utime, st.Utime)
	assert.GreaterOrEqual(t, st2.Stime, st.Stime)
}

func TestReadStat_NoSuchPid(t *testing.T) {
	_, err := ReadStat(999999)
	require.Error(t, err)
}

func TestReadIDs_Self(t *testing.T) {
	uid, gid, err := ReadIDs(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), uid)
	assert.Equal(t, os.Getgid(), gid)
}

func TestReadExe_Self(t *testing.T) {
	exe, err := ReadExe(os.Getpid())
	require.NoError(t, err)
	assert.NotEmpty(t, exe)
}

func TestReadCgroup_Self(t *testing.T) {
	cg, err := ReadCgroup(os.Getpid())
	require.NoError(t, err)
	// Empty on pure-v1 hosts; on unified hosts it starts with "/".
	if cg != "" {
		assert.Equal(t, byte('/'), cg[0])
	}
}

func TestReadIO_Self(t *testing.T) {
	me := os.Getpid()
	r0, w0, err := ReadIO(me)
	if err != nil {
		t.Skipf("skipping: /proc/%d/io not available: %v", me, err)
	}

	time.Sleep(5 * time.Millisecond)
	r1, w1, err := ReadIO(me)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r1, r0)
	assert.GreaterOrEqual(t, w1, w0)
}

func TestReadRSS_Self(t *testing.T) {
	rss, err := ReadRSS(os.Getpid())
	if err != nil {
		t.Skipf("skipping: unable to read RSS for self: %v", err)
	}
	assert.Greater(t, rss, uint64(0))
}

func TestReadRSS_NoSuchPid(t *testing.T) {
	_, err := ReadRSS(999999)
	require.ErrorIs(t, err, ErrNoRSS)
}

func TestReadSystemCPU(t *testing.T) {
	a0, t0, err := ReadSystemCPU()
	require.NoError(t, err)
	assert.Greater(t, t0, uint64(0))
	assert.GreaterOrEqual(t, t0, a0)

	time.Sleep(10 * time.Millisecond)
	a1, t1, err := ReadSystemCPU()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a1, a0)
	assert.GreaterOrEqual(t, t1, t0)
}
