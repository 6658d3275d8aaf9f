package daemon

import (
	"sync"
	"time"
)

type metaEntry struct {
	exe      string
	cgroup   string
	storedAt time.Time
}

// Cache remembers per-PID metadata that is expensive or flaky to read
// (exe symlinks turn unreadable after privilege changes, cgroup reads
// race with exits). Entries expire after a TTL and the cache never grows
// past its capacity; the oldest entry is evicted first.
type Cache struct {
	mu       sync.Mutex
	entries  map[int]metaEntry
	ttl      time.Duration
	capacity int

	now func() time.Time
}

func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if capacity < 1 {
		capacity = 4096
	}
	return &Cache{
		entries:  make(map[int]metaEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Remember stores metadata for pid. Empty values are not stored; a miss
// is better than caching "unknown".
func (c *Cache) Remember(pid int, exe, cgroup string) {
	if exe == "" && cgroup == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[pid]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[pid] = metaEntry{exe: exe, cgroup: cgroup, storedAt: c.now()}
}

// Lookup returns remembered metadata for pid. Expired entries miss and
// are dropped.
func (c *Cache) Lookup(pid int) (exe, cgroup string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[pid]
	if !exists {
		return "", "", false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, pid)
		return "", "", false
	}
	return e.exe, e.cgroup, true
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry with the oldest store time. Caller
// holds c.mu.
func (c *Cache) evictOldest() {
	var (
		oldestPID int
		oldestAt  time.Time
		first     = true
	)
	for pid, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestPID, oldestAt = pid, e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestPID)
	}
}
