package taskstats

// Unit describes how a raw field value is scaled.
type Unit uint8

const (
	UnitNone Unit = iota
	UnitMicroseconds
	UnitNanoseconds
	UnitBytes
	// UnitMBMicroseconds is the kernel's accumulated memory unit (MB * usec).
	UnitMBMicroseconds
	UnitText
	UnitKilobytes
)

func (u Unit) String() string {
	switch u {
	case UnitMicroseconds:
		return "us"
	case UnitNanoseconds:
		return "ns"
	case UnitBytes:
		return "bytes"
	case UnitMBMicroseconds:
		return "MB-us"
	case UnitText:
		return "text"
	case UnitKilobytes:
		return "KB"
	default:
		return ""
	}
}

// Field locates one member of struct taskstats inside the payload.
type Field struct {
	Name   string
	Offset int
	Size   int
	Unit   Unit
	// Since is the first protocol version carrying the field.
	Since uint16
}

// Layout is a versioned prefix of struct taskstats. Newer kernels only append
// members, so each layout extends the previous one.
type Layout struct {
	Version uint16
	Size    int
}

// Fields returns the members present in the layout, in offset order.
func (l Layout) Fields() []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Since <= l.Version && f.Offset+f.Size <= l.Size {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether the layout carries the named field.
func (l Layout) Has(name string) bool {
	f, ok := fieldByName[name]
	return ok && f.Since <= l.Version && f.Offset+f.Size <= l.Size
}

const (
	// BaseSize is sizeof(struct taskstats) at TASKSTATS_VERSION 8, the oldest
	// layout accepted.
	BaseSize = 328
	// RawSize is the largest known layout.
	RawSize = 432
)

var (
	// BaseLayout is the minimum every stats payload must satisfy.
	BaseLayout = Layout{Version: 8, Size: BaseSize}

	// Layouts lists every known layout, oldest first.
	Layouts = []Layout{
		BaseLayout,
		{Version: 9, Size: 344},
		{Version: 10, Size: 352},
		{Version: 11, Size: 368},
		{Version: 12, Size: 400},
		{Version: 13, Size: 416},
		{Version: 14, Size: RawSize},
	}
)

// LayoutFor returns the richest known layout that both the reported version
// and the payload length support. Payloads from kernels newer than the table
// decode through the last layout; trailing bytes are kept in Raw.
func LayoutFor(version uint16, length int) Layout {
	best := BaseLayout
	for _, l := range Layouts {
		if l.Version <= version && l.Size <= length {
			best = l
		}
	}
	return best
}

// fields mirrors include/uapi/linux/taskstats.h. Offsets account for the
// kernel's alignment: ac_uid starts at 120 because the kernel declares it
// __attribute__((aligned(8))).
var fields = []Field{
	{Name: "version", Offset: 0, Size: 2, Since: 8},
	{Name: "ac_exitcode", Offset: 4, Size: 4, Since: 8},
	{Name: "ac_flag", Offset: 8, Size: 1, Since: 8},
	{Name: "ac_nice", Offset: 9, Size: 1, Since: 8},

	{Name: "cpu_count", Offset: 16, Size: 8, Since: 8},
	{Name: "cpu_delay_total", Offset: 24, Size: 8, Unit: UnitNanoseconds, Since: 8},
	{Name: "blkio_count", Offset: 32, Size: 8, Since: 8},
	{Name: "blkio_delay_total", Offset: 40, Size: 8, Unit: UnitNanoseconds, Since: 8},
	{Name: "swapin_count", Offset: 48, Size: 8, Since: 8},
	{Name: "swapin_delay_total", Offset: 56, Size: 8, Unit: UnitNanoseconds, Since: 8},
	{Name: "cpu_run_real_total", Offset: 64, Size: 8, Unit: UnitNanoseconds, Since: 8},
	{Name: "cpu_run_virtual_total", Offset: 72, Size: 8, Unit: UnitNanoseconds, Since: 8},

	{Name: "ac_comm", Offset: 80, Size: 32, Unit: UnitText, Since: 8},
	{Name: "ac_sched", Offset: 112, Size: 1, Since: 8},
	{Name: "ac_uid", Offset: 120, Size: 4, Since: 8},
	{Name: "ac_gid", Offset: 124, Size: 4, Since: 8},
	{Name: "ac_pid", Offset: 128, Size: 4, Since: 8},
	{Name: "ac_ppid", Offset: 132, Size: 4, Since: 8},
	{Name: "ac_btime", Offset: 136, Size: 4, Since: 8},
	{Name: "ac_etime", Offset: 144, Size: 8, Unit: UnitMicroseconds, Since: 8},
	{Name: "ac_utime", Offset: 152, Size: 8, Unit: UnitMicroseconds, Since: 8},
	{Name: "ac_stime", Offset: 160, Size: 8, Unit: UnitMicroseconds, Since: 8},
	{Name: "ac_minflt", Offset: 168, Size: 8, Since: 8},
	{Name: "ac_majflt", Offset: 176, Size: 8, Since: 8},

	{Name: "coremem", Offset: 184, Size: 8, Unit: UnitMBMicroseconds, Since: 8},
	{Name: "virtmem", Offset: 192, Size: 8, Unit: UnitMBMicroseconds, Since: 8},
	{Name: "hiwater_rss", Offset: 200, Size: 8, Unit: UnitKilobytes, Since: 8},
	{Name: "hiwater_vm", Offset: 208, Size: 8, Unit: UnitKilobytes, Since: 8},

	{Name: "read_char", Offset: 216, Size: 8, Unit: UnitBytes, Since: 8},
	{Name: "write_char", Offset: 224, Size: 8, Unit: UnitBytes, Since: 8},
	{Name: "read_syscalls", Offset: 232, Size: 8, Since: 8},
	{Name: "write_syscalls", Offset: 240, Size: 8, Since: 8},

	{Name: "read_bytes", Offset: 248, Size: 8, Unit: UnitBytes, Since: 8},
	{Name: "write_bytes", Offset: 256, Size: 8, Unit: UnitBytes, Since: 8},
	{Name: "cancelled_write_bytes", Offset: 264, Size: 8, Unit: UnitBytes, Since: 8},

	{Name: "nvcsw", Offset: 272, Size: 8, Since: 8},
	{Name: "nivcsw", Offset: 280, Size: 8, Since: 8},

	{Name: "ac_utimescaled", Offset: 288, Size: 8, Unit: UnitMicroseconds, Since: 8},
	{Name: "ac_stimescaled", Offset: 296, Size: 8, Unit: UnitMicroseconds, Since: 8},
	{Name: "cpu_scaled_run_real_total", Offset: 304, Size: 8, Unit: UnitNanoseconds, Since: 8},

	{Name: "freepages_count", Offset: 312, Size: 8, Since: 8},
	{Name: "freepages_delay_total", Offset: 320, Size: 8, Unit: UnitNanoseconds, Since: 8},

	{Name: "thrashing_count", Offset: 328, Size: 8, Since: 9},
	{Name: "thrashing_delay_total", Offset: 336, Size: 8, Unit: UnitNanoseconds, Since: 9},

	{Name: "ac_btime64", Offset: 344, Size: 8, Since: 10},

	{Name: "compact_count", Offset: 352, Size: 8, Since: 11},
	{Name: "compact_delay_total", Offset: 360, Size: 8, Unit: UnitNanoseconds, Since: 11},

	{Name: "ac_tgid", Offset: 368, Size: 4, Since: 12},
	{Name: "ac_tgetime", Offset: 376, Size: 8, Unit: UnitMicroseconds, Since: 12},
	{Name: "ac_exe_dev", Offset: 384, Size: 8, Since: 12},
	{Name: "ac_exe_inode", Offset: 392, Size: 8, Since: 12},

	{Name: "wpcopy_count", Offset: 400, Size: 8, Since: 13},
	{Name: "wpcopy_delay_total", Offset: 408, Size: 8, Unit: UnitNanoseconds, Since: 13},

	{Name: "irq_count", Offset: 416, Size: 8, Since: 14},
	{Name: "irq_delay_total", Offset: 424, Size: 8, Unit: UnitNanoseconds, Since: 14},
}

var fieldByName = func() map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the table entry for a struct taskstats member.
func LookupField(name string) (Field, bool) {
	f, ok := fieldByName[name]
	return f, ok
}

// AllFields returns the full offset table, oldest member first.
func AllFields() []Field {
	return append([]Field(nil), fields...)
}
