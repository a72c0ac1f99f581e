// Package procinfo resolves task names and thread lists from /proc.
package procinfo

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/procfs"
)

// procComm allows tests to stub reading /proc/PID/comm.
var procComm = func(pid int) (string, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return "", err
	}
	return p.Comm()
}

// procThreads allows tests to stub listing /proc/PID/task.
var procThreads = func(pid int) ([]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	threads, err := fs.AllThreads(pid)
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(threads))
	for _, t := range threads {
		tids = append(tids, t.PID)
	}
	return tids, nil
}

// CommCache memoizes /proc/PID/comm lookups. The zero value is ready to use
// and safe for concurrent use.
type CommCache struct {
	mu    sync.Mutex
	names map[uint32]string
}

// Comm returns the command name of pid, or "pid-N" when /proc has no entry.
func (c *CommCache) Comm(pid uint32) string {
	if pid == 0 {
		return "idle"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.names[pid]; ok {
		return name
	}
	if c.names == nil {
		c.names = make(map[uint32]string)
	}
	comm, err := procComm(int(pid))
	comm = strings.TrimSpace(comm)
	if err != nil || comm == "" {
		comm = fmt.Sprintf("pid-%d", pid)
	}
	c.names[pid] = comm
	return comm
}

// Forget drops a cached name, e.g. after the task exited and its id may be
// reused.
func (c *CommCache) Forget(pid uint32) {
	c.mu.Lock()
	delete(c.names, pid)
	c.mu.Unlock()
}

// Threads lists the task ids of every thread in the thread group pid, sorted.
func Threads(pid uint32) ([]uint32, error) {
	tids, err := procThreads(int(pid))
	if err != nil {
		return nil, fmt.Errorf("list threads of %d: %w", pid, err)
	}
	out := make([]uint32, 0, len(tids))
	for _, tid := range tids {
		out = append(out, uint32(tid))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
