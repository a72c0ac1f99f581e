package taskstats

import "time"

// TaskStats is the accounting snapshot of one task or thread group.
type TaskStats struct {
	// TID is ac_pid: the task, or thread group, the record describes.
	TID     uint32 `json:"tid" yaml:"tid"`
	Version uint16 `json:"version" yaml:"version"`
	Comm    string `json:"comm" yaml:"comm"`

	CPU             CPU             `json:"cpu" yaml:"cpu"`
	Memory          Memory          `json:"memory" yaml:"memory"`
	IO              IO              `json:"io" yaml:"io"`
	BlkIO           BlkIO           `json:"blkio" yaml:"blkio"`
	ContextSwitches ContextSwitches `json:"context_switches" yaml:"context_switches"`
	Delays          Delays          `json:"delays" yaml:"delays"`

	raw Raw
}

// Raw exposes the received struct taskstats for members TaskStats does not
// project.
func (t *TaskStats) Raw() *Raw {
	return &t.raw
}

// CPU time consumed by the task.
type CPU struct {
	UTimeTotal       time.Duration `json:"utime_total" yaml:"utime_total"`
	STimeTotal       time.Duration `json:"stime_total" yaml:"stime_total"`
	RealTimeTotal    time.Duration `json:"real_time_total" yaml:"real_time_total"`
	VirtualTimeTotal time.Duration `json:"virtual_time_total" yaml:"virtual_time_total"`
}

// Memory usage integrals and fault counters. RSSTotal and VirtTotal are in
// MB-usecs as accumulated by the kernel.
type Memory struct {
	RSSTotal    uint64 `json:"rss_total" yaml:"rss_total"`
	VirtTotal   uint64 `json:"virt_total" yaml:"virt_total"`
	MinorFaults uint64 `json:"minor_faults" yaml:"minor_faults"`
	MajorFaults uint64 `json:"major_faults" yaml:"major_faults"`
}

// IO at the syscall surface.
type IO struct {
	ReadBytes     uint64 `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes    uint64 `json:"write_bytes" yaml:"write_bytes"`
	ReadSyscalls  uint64 `json:"read_syscalls" yaml:"read_syscalls"`
	WriteSyscalls uint64 `json:"write_syscalls" yaml:"write_syscalls"`
}

// BlkIO is I/O as seen by the block layer.
type BlkIO struct {
	ReadBytes           uint64 `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes          uint64 `json:"write_bytes" yaml:"write_bytes"`
	CancelledWriteBytes uint64 `json:"cancelled_write_bytes" yaml:"cancelled_write_bytes"`
}

type ContextSwitches struct {
	Voluntary    uint64 `json:"voluntary" yaml:"voluntary"`
	NonVoluntary uint64 `json:"non_voluntary" yaml:"non_voluntary"`
}

// Delays are the delay accounting counters. Thrashing, Compact, WPCopy and
// IRQ stay zero when the kernel's layout predates them.
type Delays struct {
	CPU       DelayStat `json:"cpu" yaml:"cpu"`
	BlkIO     DelayStat `json:"blkio" yaml:"blkio"`
	SwapIn    DelayStat `json:"swapin" yaml:"swapin"`
	FreePages DelayStat `json:"freepages" yaml:"freepages"`
	Thrashing DelayStat `json:"thrashing" yaml:"thrashing"`
	Compact   DelayStat `json:"compact" yaml:"compact"`
	WPCopy    DelayStat `json:"wpcopy" yaml:"wpcopy"`
	IRQ       DelayStat `json:"irq" yaml:"irq"`
}

type DelayStat struct {
	Count      uint64        `json:"count" yaml:"count"`
	DelayTotal time.Duration `json:"delay_total" yaml:"delay_total"`
}

// Average is the mean delay per recorded event.
func (d DelayStat) Average() time.Duration {
	if d.Count == 0 {
		return 0
	}
	return d.DelayTotal / time.Duration(d.Count)
}
