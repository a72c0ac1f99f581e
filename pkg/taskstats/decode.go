package taskstats

import (
	"fmt"
	"time"
)

// Decode projects a TASKSTATS_TYPE_STATS payload into TaskStats. It panics if
// b is shorter than BaseSize; callers only pass payloads the kernel framed as
// a full struct taskstats.
func Decode(b []byte) TaskStats {
	if len(b) < BaseSize {
		panic(fmt.Sprintf("taskstats: stats payload of %d bytes is shorter than %d", len(b), BaseSize))
	}

	raw := newRaw(b)
	version := uint16(raw.field("version"))
	layout := LayoutFor(version, raw.n)

	u := func(name string) uint64 {
		if !layout.Has(name) {
			return 0
		}
		return raw.field(name)
	}
	us := func(name string) time.Duration { return time.Duration(u(name)) * time.Microsecond }
	ns := func(name string) time.Duration { return time.Duration(u(name)) }
	delay := func(prefix string) DelayStat {
		return DelayStat{Count: u(prefix + "_count"), DelayTotal: ns(prefix + "_delay_total")}
	}

	comm, _ := raw.Text("ac_comm")

	return TaskStats{
		TID:     uint32(u("ac_pid")),
		Version: version,
		Comm:    comm,
		CPU: CPU{
			UTimeTotal:       us("ac_utime"),
			STimeTotal:       us("ac_stime"),
			RealTimeTotal:    ns("cpu_run_real_total"),
			VirtualTimeTotal: ns("cpu_run_virtual_total"),
		},
		Memory: Memory{
			RSSTotal:    u("coremem"),
			VirtTotal:   u("virtmem"),
			MinorFaults: u("ac_minflt"),
			MajorFaults: u("ac_majflt"),
		},
		IO: IO{
			ReadBytes:     u("read_char"),
			WriteBytes:    u("write_char"),
			ReadSyscalls:  u("read_syscalls"),
			WriteSyscalls: u("write_syscalls"),
		},
		BlkIO: BlkIO{
			ReadBytes:           u("read_bytes"),
			WriteBytes:          u("write_bytes"),
			CancelledWriteBytes: u("cancelled_write_bytes"),
		},
		ContextSwitches: ContextSwitches{
			Voluntary:    u("nvcsw"),
			NonVoluntary: u("nivcsw"),
		},
		Delays: Delays{
			CPU:       delay("cpu"),
			BlkIO:     delay("blkio"),
			SwapIn:    delay("swapin"),
			FreePages: delay("freepages"),
			Thrashing: delay("thrashing"),
			Compact:   delay("compact"),
			WPCopy:    delay("wpcopy"),
			IRQ:       delay("irq"),
		},
		raw: raw,
	}
}
